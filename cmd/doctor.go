package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spacenotes/spacenotes-sync/pkg/config"
	"github.com/spacenotes/spacenotes-sync/pkg/store"
)

var doctorVaultPath string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Print diagnostic information about a vault and its replicated table store",
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorVaultPath, "vault-path", "", "path to the Markdown vault (defaults to the current directory)")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	vaultPath := doctorVaultPath
	if vaultPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("doctor: resolve working directory: %w", err)
		}
		vaultPath = wd
	}

	cfg, err := config.Load(vaultPath)
	if err != nil {
		return fmt.Errorf("doctor: load config: %w", err)
	}

	fmt.Printf("vault path:  %s\n", cfg.VaultPath)
	fmt.Printf("node id:     %s\n", cfg.NodeID)
	fmt.Printf("data dir:    %s\n", cfg.DataDir)
	fmt.Printf("mcp addr:    %s\n", cfg.MCPAddr)

	rt, err := store.NewRuntime(store.RuntimeConfig{NodeID: cfg.NodeID, DataDir: cfg.DataDir})
	if err != nil {
		fmt.Printf("runtime:     unavailable (%v)\n", err)
		return nil
	}
	defer rt.Close()

	fmt.Println("runtime:     connected, leader elected")

	notes, err := rt.Rows().ListNotes()
	if err != nil {
		return fmt.Errorf("doctor: list notes: %w", err)
	}
	folders, err := rt.Rows().ListFolders()
	if err != nil {
		return fmt.Errorf("doctor: list folders: %w", err)
	}
	fmt.Printf("notes:       %d\n", len(notes))
	fmt.Printf("folders:     %d\n", len(folders))

	return nil
}
