package cmd

import (
	"encoding/json"
	"fmt"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the active pool configuration and print suggestions",
	Run:   analyzeConfig,
}

func init() {
	analyzeCmd.Flags().Bool("json", false, "print the analysis as json")
	rootCmd.AddCommand(analyzeCmd)
}

func analyzeConfig(cmd *cobra.Command, _ []string) {
	defer StopApp()

	analysis := cacheConfigUsecase.AnalyzePerformance()
	risks := cacheConfigUsecase.PerformanceRisks()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		out, _ := json.MarshalIndent(map[string]any{"analysis": analysis, "risks": risks}, "", "  ")
		fmt.Println(string(out))
		return
	}

	fmt.Printf("score: %.0f/100  risk: %s\n", analysis.PerformanceScore, risks.Level)
	fmt.Printf("memory estimate: %s\n", analysis.MemoryEstimate.Formatted)
	for _, pool := range domainCache.AllPools() {
		if bytes, ok := analysis.MemoryEstimate.PerPool[pool]; ok {
			fmt.Printf("  %-8s %s\n", pool, humanize.IBytes(uint64(bytes)))
		}
	}
	for _, b := range analysis.Bottlenecks {
		fmt.Printf("bottleneck: %s\n", b)
	}
	for _, r := range risks.Reasons {
		fmt.Printf("risk: %s\n", r)
	}
	for _, s := range cacheConfigUsecase.OptimizationSuggestions() {
		fmt.Printf("[%s] %s: %v -> %v (%s)\n", s.Priority, s.ConfigPath, s.CurrentValue, s.SuggestedValue, s.ExpectedImpact)
	}
}
