package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	coreconfig "github.com/AzielCF/az-cache/core/config"
	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/AzielCF/az-cache/infrastructure/configstore"
	"github.com/AzielCF/az-cache/validations"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Validate pool configuration files without applying them",
	Long: `Validate one or more configuration snapshots (json or yaml) against the
rule catalog. Without arguments the configured CACHE_CONFIG_FILE is checked.`,
	Run: validateFiles,
}

func init() {
	validateCmd.Flags().Bool("json", false, "print the results as json")
	rootCmd.AddCommand(validateCmd)
}

func validateFiles(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		args = []string{coreconfig.Global.Cache.ConfigFile}
	}

	configs := make([]domainCache.NamedConfig, 0, len(args))
	for _, path := range args {
		set, err := configstore.NewFileStore(path, configstore.FileStoreOptions{}).Load(context.Background())
		if err != nil {
			logrus.Fatalf("[VALIDATE] %v", err)
		}
		configs = append(configs, domainCache.NamedConfig{Name: path, Config: set})
	}

	results := validations.NewDefaultValidator().ValidateBatch(configs)

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		out, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(out))
	} else {
		for _, r := range results {
			printValidation(r)
		}
	}

	for _, r := range results {
		if !r.Result.Valid {
			os.Exit(1)
		}
	}
}

func printValidation(r domainCache.NamedResult) {
	status := "valid"
	if !r.Result.Valid {
		status = "INVALID"
	}
	fmt.Printf("%s: %s (%d errors, %d warnings)\n", r.Name, status, len(r.Result.Errors), len(r.Result.Warnings))
	for _, issue := range r.Result.Errors {
		fmt.Printf("  error   %-24s %s\n", issue.Path, issue.Message)
	}
	for _, issue := range r.Result.Warnings {
		fmt.Printf("  warning %-24s %s\n", issue.Path, issue.Message)
	}
	for _, s := range r.Result.Suggestions {
		fmt.Printf("  hint    %s\n", s)
	}
}
