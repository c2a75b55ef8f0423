// Package main is the entry point for the gx-admin console.
//
// gx-admin is the administrative companion of the GX Tunnel service: it
// manages tunnel user accounts (mirrored as system logins), the nested
// configuration document, the statistics database written by the tunnel,
// and the tunnel's systemd units.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"gx-admin/internal/account"
	"gx-admin/internal/auth"
	"gx-admin/internal/config"
	"gx-admin/internal/provision"
	"gx-admin/internal/service"
	"gx-admin/internal/stats"
	"gx-admin/internal/sysinfo"
	"gx-admin/internal/userdb"
	"gx-admin/pkg/certgen"
)

func main() {
	// Optional .env overlay for GX_ADMIN_* variables.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		return
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "add-user":
		if len(os.Args) < 4 || len(os.Args) > 6 {
			fmt.Println("Usage: gx-admin add-user <username> <password> [expires YYYY-MM-DD] [max-connections]")
			os.Exit(1)
		}
		req := account.CreateRequest{Username: os.Args[2], Password: os.Args[3]}
		if len(os.Args) > 4 {
			req.Expires = os.Args[4]
		}
		if len(os.Args) > 5 {
			n, err := strconv.Atoi(os.Args[5])
			if err != nil {
				fmt.Printf("Invalid max-connections: %v\n", err)
				os.Exit(1)
			}
			req.MaxConnections = n
		}
		manager := mustManager()
		user, err := manager.CreateUser(ctx, req)
		if err != nil {
			fmt.Printf("Error adding user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("User '%s' added successfully!\n", user.Username)

	case "remove-user":
		if len(os.Args) != 3 {
			fmt.Println("Usage: gx-admin remove-user <username>")
			os.Exit(1)
		}
		manager := mustManager()
		if err := manager.DeleteUser(ctx, os.Args[2]); err != nil {
			fmt.Printf("Error removing user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("User '%s' removed successfully!\n", os.Args[2])

	case "update-user":
		if len(os.Args) < 4 {
			fmt.Println("Usage: gx-admin update-user <username> <field=value>...")
			fmt.Println("Fields: password, expires, max_connections, active")
			os.Exit(1)
		}
		upd, err := parseUpdate(os.Args[3:])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		manager := mustManager()
		if _, err := manager.UpdateUser(ctx, os.Args[2], upd); err != nil {
			fmt.Printf("Error updating user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("User '%s' updated successfully!\n", os.Args[2])

	case "list-users":
		manager := mustManager()
		views, err := manager.ListUsers(ctx)
		if err != nil {
			fmt.Printf("Error listing users: %v\n", err)
			os.Exit(1)
		}
		printUsers(views)

	case "enable-user", "disable-user":
		if len(os.Args) != 3 {
			fmt.Printf("Usage: gx-admin %s <username>\n", os.Args[1])
			os.Exit(1)
		}
		active := os.Args[1] == "enable-user"
		manager := mustManager()
		if _, err := manager.UpdateUser(ctx, os.Args[2], account.Update{Active: &active}); err != nil {
			fmt.Printf("Error updating user: %v\n", err)
			os.Exit(1)
		}
		state := "enabled"
		if !active {
			state = "disabled"
		}
		fmt.Printf("User '%s' %s successfully!\n", os.Args[2], state)

	case "verify-user":
		if len(os.Args) != 4 {
			fmt.Println("Usage: gx-admin verify-user <username> <password>")
			os.Exit(1)
		}
		if err := provision.VerifyAccount(os.Args[2], os.Args[3]); err != nil {
			fmt.Printf("Verification failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Credentials for '%s' verified against the system account.\n", os.Args[2])

	case "check-admin":
		if len(os.Args) != 4 {
			fmt.Println("Usage: gx-admin check-admin <username> <password>")
			os.Exit(1)
		}
		if err := checkAdmin(ctx, os.Args[2], os.Args[3]); err != nil {
			fmt.Printf("Admin login failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Admin credentials accepted.")

	case "backup-users":
		path, err := backupUsers()
		if err != nil {
			fmt.Printf("Error backing up users: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("User database backed up to '%s' successfully!\n", path)

	case "config-get":
		doc, err := mustConfigStore().Load()
		if err != nil {
			fmt.Printf("Error reading configuration: %v\n", err)
			os.Exit(1)
		}
		printJSON(doc)

	case "config-set":
		if len(os.Args) != 3 {
			fmt.Println("Usage: gx-admin config-set '<json patch>'")
			os.Exit(1)
		}
		patch := config.Document{}
		if err := json.Unmarshal([]byte(os.Args[2]), &patch); err != nil {
			fmt.Printf("Invalid patch: %v\n", err)
			os.Exit(1)
		}
		doc, err := mustConfigStore().Update(patch)
		if err != nil {
			fmt.Printf("Error updating configuration: %v\n", err)
			os.Exit(1)
		}
		printJSON(doc)

	case "stats":
		showStats(ctx)

	case "recent":
		limit := 10
		if len(os.Args) > 2 {
			n, err := strconv.Atoi(os.Args[2])
			if err != nil || n <= 0 {
				fmt.Println("Usage: gx-admin recent [limit]")
				os.Exit(1)
			}
			limit = n
		}
		showRecent(ctx, limit)

	case "service":
		if len(os.Args) != 3 {
			fmt.Println("Usage: gx-admin service <start|stop|restart|status>")
			os.Exit(1)
		}
		runService(ctx, os.Args[2])

	case "gen-cert":
		if err := genCert(); err != nil {
			fmt.Printf("Error generating certificate: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// mustManager wires the account manager over the configured paths,
// seeding the default admin credential from the environment if the user
// document does not carry one yet.
func mustManager() *account.Manager {
	userPath, err := config.GetUserDBPath()
	if err != nil {
		log.Fatalf("Failed to resolve user database path: %v", err)
	}
	store := userdb.NewStore(userPath)
	if err := seedDefaultAdmin(store); err != nil {
		log.Printf("Warning: failed to seed default admin credentials: %v", err)
	}

	opts := []account.Option{}
	if statsStore := openStats(); statsStore != nil {
		opts = append(opts, account.WithStatsReader(statsStore))
	}
	if os.Getenv("GX_ADMIN_SYNC_PASSWORDS") == "1" {
		opts = append(opts, account.WithPasswordSync())
	}
	return account.NewManager(store, provision.NewExecProvisioner(), opts...)
}

// openStats opens the statistics database, returning nil when it is
// unavailable so user management keeps working without it.
func openStats() *stats.Store {
	statsPath, err := config.GetStatsDBPath()
	if err != nil {
		return nil
	}
	statsStore, err := stats.Open(statsPath)
	if err != nil {
		log.Printf("Warning: statistics database unavailable: %v", err)
		return nil
	}
	return statsStore
}

func mustConfigStore() *config.Store {
	path, err := config.GetConfigFilePath()
	if err != nil {
		log.Fatalf("Failed to resolve configuration path: %v", err)
	}
	return config.NewStore(path)
}

// seedDefaultAdmin stores bcrypt-hashed admin credentials from
// GX_ADMIN_DEFAULT_USER / GX_ADMIN_DEFAULT_PASSWORD into the user
// document settings, if none are present yet.
func seedDefaultAdmin(store *userdb.Store) error {
	username := os.Getenv("GX_ADMIN_DEFAULT_USER")
	password := os.Getenv("GX_ADMIN_DEFAULT_PASSWORD")
	if username == "" || password == "" {
		return nil
	}

	doc, err := store.Load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		doc = &userdb.Document{Settings: map[string]any{}}
	}
	if v, ok := doc.Settings["admin_password"].(string); ok && v != "" {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	doc.Settings["admin_username"] = username
	doc.Settings["admin_password"] = hash
	log.Printf("Seeding admin credentials for '%s' from environment", username)
	return store.Save(doc)
}

// checkAdmin runs a full login against the stored admin credential,
// recording the attempt to the security log when the statistics database
// is reachable.
func checkAdmin(ctx context.Context, username, password string) error {
	userPath, err := config.GetUserDBPath()
	if err != nil {
		return err
	}
	doc, err := userdb.NewStore(userPath).Load()
	if err != nil {
		return err
	}
	cfgDoc, err := mustConfigStore().Load()
	if err != nil {
		return err
	}

	var recorder auth.SecurityRecorder
	if statsStore := openStats(); statsStore != nil {
		defer statsStore.Close()
		recorder = statsStore
	}
	authenticator := auth.NewAuthenticator(
		auth.CredentialsFromSettings(doc.Settings),
		auth.ConfigFromDocument(cfgDoc),
		recorder,
	)
	_, err = authenticator.Login(ctx, username, password, "cli")
	return err
}

// backupUsers snapshots the user document into the backup directory.
func backupUsers() (string, error) {
	userPath, err := config.GetUserDBPath()
	if err != nil {
		return "", err
	}
	backupDir, err := config.GetBackupDir()
	if err != nil {
		return "", err
	}
	now := time.Now()
	name := fmt.Sprintf("backup_%s.json", now.Format("2006-01-02T15-04-05"))
	backupPath := filepath.Join(backupDir, name)
	if err := userdb.NewStore(userPath).Backup(backupPath, now); err != nil {
		return "", err
	}
	return backupPath, nil
}

func parseUpdate(args []string) (account.Update, error) {
	upd := account.Update{}
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok {
			return upd, fmt.Errorf("expected field=value, got %q", arg)
		}
		switch field {
		case "password":
			v := value
			upd.Password = &v
		case "expires":
			v := value
			upd.Expires = &v
		case "max_connections":
			n, err := strconv.Atoi(value)
			if err != nil {
				return upd, fmt.Errorf("invalid max_connections: %v", err)
			}
			upd.MaxConnections = &n
		case "active":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return upd, fmt.Errorf("invalid active: %v", err)
			}
			upd.Active = &b
		default:
			return upd, fmt.Errorf("unknown field %q", field)
		}
	}
	return upd, nil
}

func printUsers(views []account.UserView) {
	if len(views) == 0 {
		fmt.Println("No users found.")
		return
	}
	fmt.Printf("%-20s %-18s %-20s %-12s %-8s %-12s %-12s %-20s\n",
		"Username", "Status", "Created", "Expires", "MaxConn", "Download", "Upload", "Last Connection")
	fmt.Println(strings.Repeat("-", 126))
	for _, v := range views {
		expires := v.Expires
		if expires == "" {
			expires = "-"
		}
		fmt.Printf("%-20s %-18s %-20s %-12s %-8d %-12s %-12s %-20s\n",
			v.Username, v.Status, v.Created, expires, v.MaxConnections,
			sysinfo.HumanBytes(v.DownloadBytes), sysinfo.HumanBytes(v.UploadBytes), v.LastConnection)
	}
}

func showStats(ctx context.Context) {
	cfgDoc, err := mustConfigStore().Load()
	if err != nil {
		fmt.Printf("Error reading configuration: %v\n", err)
		os.Exit(1)
	}
	tunnelPort := 8080
	if server, ok := cfgDoc["server"].(map[string]any); ok {
		if p, ok := server["port"].(float64); ok {
			tunnelPort = int(p)
		}
	}

	system := sysinfo.NewCollector(tunnelPort).Collect(ctx)
	fmt.Printf("Host:      %s (%s, %s)\n", system.Hostname, system.OS, system.Architecture)
	fmt.Printf("CPU:       %.1f%%\n", system.CPUUsage)
	fmt.Printf("Memory:    %.2fGB / %.2fGB (%.1f%%)\n", system.MemoryUsed, system.MemoryTotal, system.MemoryUsage)
	fmt.Printf("Disk:      %.2fGB / %.2fGB (%.1f%%)\n", system.DiskUsed, system.DiskTotal, system.DiskUsage)
	fmt.Printf("Network:   sent %s, received %s\n",
		sysinfo.HumanBytes(system.Network.BytesSent), sysinfo.HumanBytes(system.Network.BytesRecv))
	fmt.Printf("Uptime:    %s\n", system.Uptime)
	fmt.Printf("Tunnels:   %d established on port %d\n", system.ActiveConnections, tunnelPort)

	if statsStore := openStats(); statsStore != nil {
		defer statsStore.Close()
		if global, err := statsStore.GlobalStats(ctx); err == nil && len(global) > 0 {
			fmt.Println("\nTunnel counters:")
			for key, value := range global {
				fmt.Printf("  %-20s %s\n", key, value)
			}
		}
	}

	fmt.Println("\nServices:")
	for unit, state := range service.NewController().Status(ctx) {
		fmt.Printf("  %-12s %s\n", unit, state)
	}
}

func showRecent(ctx context.Context, limit int) {
	statsStore := openStats()
	if statsStore == nil {
		fmt.Println("Statistics database unavailable.")
		os.Exit(1)
	}
	defer statsStore.Close()

	connections, err := statsStore.RecentConnections(ctx, limit)
	if err != nil {
		fmt.Printf("Error reading connection log: %v\n", err)
		os.Exit(1)
	}
	if len(connections) == 0 {
		fmt.Println("No recent connections.")
		return
	}
	fmt.Printf("%-20s %-16s %-20s %-10s %-12s %-12s\n",
		"Username", "Client IP", "Start Time", "Duration", "Download", "Upload")
	fmt.Println(strings.Repeat("-", 94))
	for _, c := range connections {
		fmt.Printf("%-20s %-16s %-20s %-10s %-12s %-12s\n",
			c.Username, c.ClientIP, c.StartTime, fmt.Sprintf("%ds", c.Duration),
			sysinfo.HumanBytes(c.DownloadBytes), sysinfo.HumanBytes(c.UploadBytes))
	}
}

func runService(ctx context.Context, action string) {
	controller := service.NewController()
	if action == "status" {
		for unit, state := range controller.Status(ctx) {
			fmt.Printf("%-12s %s\n", unit, state)
		}
		return
	}
	if err := controller.Apply(ctx, action); err != nil {
		fmt.Printf("Failed to %s services: %v\n", action, err)
		os.Exit(1)
	}
	fmt.Printf("Services %sed successfully!\n", action)
}

// genCert generates a self-signed certificate for the console and points
// the configuration document at it.
func genCert() error {
	store := mustConfigStore()
	doc, err := store.Load()
	if err != nil {
		return err
	}

	domain := ""
	certPath := ""
	keyPath := ""
	if server, ok := doc["server"].(map[string]any); ok {
		domain, _ = server["domain"].(string)
		certPath, _ = server["ssl_cert"].(string)
		keyPath, _ = server["ssl_key"].(string)
	}
	if certPath == "" || keyPath == "" {
		dir, err := config.GetConfigDir()
		if err != nil {
			return err
		}
		certPath = filepath.Join(dir, "webgui.crt")
		keyPath = filepath.Join(dir, "webgui.key")
	}

	if err := certgen.GenerateCert(certPath, keyPath, domain); err != nil {
		return err
	}
	if _, err := store.Update(config.Document{
		"server": map[string]any{"ssl_cert": certPath, "ssl_key": keyPath},
	}); err != nil {
		return err
	}
	fmt.Printf("Certificate written to %s\n", certPath)
	return nil
}

// printJSON pretty-prints a document to stdout.
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

// printUsage prints CLI usage information.
func printUsage() {
	fmt.Println(`GX Admin - Web Administration Core for GX Tunnel

Usage:
  gx-admin add-user <user> <pass> [expires] [max-conn]  - Add a tunnel user
  gx-admin remove-user <user>                           - Remove a tunnel user
  gx-admin update-user <user> <field=value>...          - Update user fields
  gx-admin list-users                                   - List users with status and usage
  gx-admin enable-user <user>                           - Enable a user account
  gx-admin disable-user <user>                          - Disable a user account
  gx-admin verify-user <user> <pass>                    - Verify system login via PAM
  gx-admin check-admin <user> <pass>                    - Verify admin credentials
  gx-admin backup-users                                 - Back up the user database
  gx-admin config-get                                   - Print the configuration document
  gx-admin config-set '<json>'                          - Deep-merge a configuration patch
  gx-admin stats                                        - Show host and tunnel statistics
  gx-admin recent [limit]                               - Show recent tunnel connections
  gx-admin service <start|stop|restart|status>          - Control the tunnel services
  gx-admin gen-cert                                     - Generate a self-signed TLS certificate
  gx-admin help                                         - Show this help

Examples:
  gx-admin add-user alice secretpw 2025-12-31 5
  gx-admin update-user alice max_connections=10 active=true
  gx-admin config-set '{"security": {"max_login_attempts": 5}}'`)
}
