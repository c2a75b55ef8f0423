// Package provision creates and removes the system logins that mirror
// tunnel user accounts, by shelling out to the standard account tools
// (useradd, chpasswd, userdel) with bounded timeouts. It also verifies
// provisioned credentials through PAM.
package provision
