package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inkvault/inkvault/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize an InkVault configuration file with fresh secrets.

By default, the configuration file is created at
$XDG_CONFIG_HOME/inkvault/config.yaml. Use --config to specify a custom
path. A random URL-signing secret and JWT secret are generated.

Examples:
  # Initialize with default location
  inkvault init

  # Initialize with custom path
  inkvault init --config /etc/inkvault/config.yaml

  # Force overwrite existing config
  inkvault init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	cfg := config.GetDefaultConfig()

	signerSecret, err := randomHex(32)
	if err != nil {
		return fmt.Errorf("failed to generate signing secret: %w", err)
	}
	jwtSecret, err := randomHex(32)
	if err != nil {
		return fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	cfg.Signer.Secret = signerSecret
	cfg.Users.JWTSecret = jwtSecret

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: inkvault serve")
	fmt.Printf("  3. Or specify custom config: inkvault serve --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  Random signing and JWT secrets have been generated. Rotating the")
	fmt.Println("  signing secret invalidates outstanding upload and download URLs;")
	fmt.Println("  rotating the JWT secret invalidates outstanding web refresh tokens.")

	return nil
}
