package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkvault/inkvault/pkg/config"
	"github.com/inkvault/inkvault/pkg/fileservice"
	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/store"
	"github.com/inkvault/inkvault/pkg/userservice"
	"github.com/inkvault/inkvault/pkg/vfs"
)

var (
	userAddDisplayName string
	userAddAdmin       bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users (add, list, passwd, disable, enable)",
	Long: `Manage InkVault accounts directly against the database.

Accounts created here carry a bcrypt credential and can log in from both
the device and the web UI. The server does not need to be running.

Examples:
  inkvault user add alice@example.com
  inkvault user passwd alice@example.com
  inkvault user disable alice@example.com
  inkvault user list`,
}

var userAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Add a new user (prompts for password)",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all users",
	Args:    cobra.NoArgs,
	RunE:    runUserList,
}

var userPasswdCmd = &cobra.Command{
	Use:     "passwd <email>",
	Aliases: []string{"password"},
	Short:   "Change a user's password",
	Args:    cobra.ExactArgs(1),
	RunE:    runUserPasswd,
}

var userDisableCmd = &cobra.Command{
	Use:   "disable <email>",
	Short: "Disable an account (sessions stop validating)",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserSetActive(false),
}

var userEnableCmd = &cobra.Command{
	Use:   "enable <email>",
	Short: "Re-enable a disabled account",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserSetActive(true),
}

func init() {
	userAddCmd.Flags().StringVar(&userAddDisplayName, "display-name", "", "Display name shown on the device")
	userAddCmd.Flags().BoolVar(&userAddAdmin, "admin", false, "Grant admin rights")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userPasswdCmd)
	userCmd.AddCommand(userDisableCmd)
	userCmd.AddCommand(userEnableCmd)
}

// openStore loads the configuration and opens the metadata store.
func openStore() (*store.GORMStore, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}
	s, err := store.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	email := strings.ToLower(strings.TrimSpace(args[0]))
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %s", email)
	}

	password, err := promptNewPassword()
	if err != nil {
		return err
	}
	hashed, err := userservice.BcryptMD5(userservice.MD5Hex(password))
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	user := &models.User{
		Email:       email,
		PasswordMD5: hashed,
		DisplayName: userAddDisplayName,
		IsActive:    true,
		IsAdmin:     userAddAdmin,
	}
	if err := s.CreateUser(ctx, user); err != nil {
		if err == models.ErrDuplicateUser {
			return fmt.Errorf("user already exists: %s", email)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	// Prepare the device folder skeleton so the first sync finds the
	// expected tree. Only the tree service is needed for this.
	files := fileservice.New(fileservice.Config{}, vfs.New(s), nil, nil, nil, nil)
	if err := files.Bootstrap(ctx, user.ID); err != nil {
		return fmt.Errorf("user created but folder bootstrap failed: %w", err)
	}

	fmt.Printf("User %s created (id %d)\n", email, user.ID)
	if user.IsAdmin {
		fmt.Println("Admin rights granted")
	}
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	users, err := s.ListUsers(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	if len(users) == 0 {
		fmt.Println("No users found")
		return nil
	}

	fmt.Printf("%-36s %-24s %-6s %-8s %s\n", "EMAIL", "DISPLAY NAME", "ADMIN", "ACTIVE", "CREATED")
	for _, u := range users {
		fmt.Printf("%-36s %-24s %-6s %-8s %s\n",
			u.Email,
			u.GetDisplayName(),
			yesNo(u.IsAdmin),
			yesNo(u.IsActive),
			u.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runUserPasswd(cmd *cobra.Command, args []string) error {
	email := strings.ToLower(strings.TrimSpace(args[0]))

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("user not found: %s", email)
	}

	password, err := promptNewPassword()
	if err != nil {
		return err
	}
	hashed, err := userservice.BcryptMD5(userservice.MD5Hex(password))
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.UpdateUserPassword(ctx, user.ID, hashed); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	fmt.Printf("Password updated for %s\n", email)
	return nil
}

func runUserSetActive(active bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		email := strings.ToLower(strings.TrimSpace(args[0]))

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := context.Background()
		user, err := s.GetUserByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("user not found: %s", email)
		}
		if err := s.SetUserActive(ctx, user.ID, active); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}

		if active {
			fmt.Printf("User %s enabled\n", email)
		} else {
			fmt.Printf("User %s disabled\n", email)
		}
		return nil
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
