package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dipwatch/dipwatch/internal/alerts"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage alert rules",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create an alert rule",
		RunE:  runRulesAdd,
	}
	addCmd.Flags().String("user", "", "Owning user id")
	addCmd.Flags().String("symbol", "", "Instrument symbol")
	addCmd.Flags().String("condition", "dip_gt", "Condition (dip_gt|rsi_lt|macd_bullish|volume_spike|pre_score_gt)")
	addCmd.Flags().Float64("threshold", 8.0, "Condition threshold")
	addCmd.Flags().Int("debounce", 0, "Debounce seconds")
	addCmd.Flags().Float64("hysteresis", 0, "Hysteresis reset band")
	addCmd.Flags().Int("cooldown", 3600, "Cooldown seconds after reset")
	addCmd.Flags().String("priority", "medium", "Priority (high|medium|low)")
	_ = addCmd.MarkFlagRequired("user")
	_ = addCmd.MarkFlagRequired("symbol")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List alert rules",
		RunE:  runRulesList,
	}
	listCmd.Flags().String("user", "", "Filter by user")
	listCmd.Flags().String("symbol", "", "Filter by symbol")

	deleteCmd := &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete an alert rule and its state",
		Args:  cobra.ExactArgs(1),
		RunE:  runRulesDelete,
	}

	cmd.AddCommand(addCmd, listCmd, deleteCmd)
	return cmd
}

func rulesApp(cmd *cobra.Command) (*app, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")
	universePath, _ := cmd.Flags().GetString("universe")
	if universePath == "" {
		universePath = "universe.yaml"
	}
	return buildApp(cmd.Context(), cfgPath, universePath, logLevel, nil)
}

func runRulesAdd(cmd *cobra.Command, _ []string) error {
	a, err := rulesApp(cmd)
	if err != nil {
		return err
	}
	rules, err := a.requireRuleStore()
	if err != nil {
		return err
	}

	user, _ := cmd.Flags().GetString("user")
	symbol, _ := cmd.Flags().GetString("symbol")
	condition, _ := cmd.Flags().GetString("condition")
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	debounce, _ := cmd.Flags().GetInt("debounce")
	hysteresis, _ := cmd.Flags().GetFloat64("hysteresis")
	cooldown, _ := cmd.Flags().GetInt("cooldown")
	priority, _ := cmd.Flags().GetString("priority")

	now := time.Now().UTC()
	rule := alerts.Rule{
		ID:              uuid.New().String(),
		UserID:          user,
		Symbol:          symbol,
		Condition:       alerts.Condition(condition),
		Threshold:       threshold,
		DebounceSeconds: debounce,
		HysteresisReset: hysteresis,
		CooldownSeconds: cooldown,
		Priority:        alerts.Priority(priority),
		Enabled:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := rule.Validate(); err != nil {
		return err
	}
	if err := rules.Create(cmd.Context(), rule); err != nil {
		return err
	}
	log.Info().Str("rule_id", rule.ID).Str("symbol", symbol).Msg("Rule created")
	return nil
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	a, err := rulesApp(cmd)
	if err != nil {
		return err
	}
	rules, err := a.requireRuleStore()
	if err != nil {
		return err
	}

	user, _ := cmd.Flags().GetString("user")
	symbol, _ := cmd.Flags().GetString("symbol")

	list, err := rules.List(cmd.Context(), user, symbol)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}

func runRulesDelete(cmd *cobra.Command, args []string) error {
	a, err := rulesApp(cmd)
	if err != nil {
		return err
	}
	rules, err := a.requireRuleStore()
	if err != nil {
		return err
	}

	id := args[0]
	rule, err := rules.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	if err := rules.Delete(cmd.Context(), id); err != nil {
		return err
	}

	// Rule deletion cascades to its cached state.
	states := a.stateStore()
	if err := states.DeleteState(cmd.Context(), id, rule.Symbol); err != nil {
		log.Warn().Err(err).Str("rule_id", id).Msg("State cleanup failed")
	}

	log.Info().Str("rule_id", id).Msg("Rule deleted")
	return nil
}
