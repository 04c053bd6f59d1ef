package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"skynet-agent/internal/agent"
	"skynet-agent/internal/agent/version"
	"skynet-agent/internal/config"
	"skynet-agent/internal/model"
)

func newRootCmd() *cobra.Command {
	var configPath string

	// load builds the agent from the config file and SKYNET_* environment.
	load := func() (*agent.Agent, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		a, err := agent.New(cfg, agent.BuildLogger(cfg.Log))
		if err != nil {
			return nil, fmt.Errorf("agent initialization failed: %w", err)
		}
		return a, nil
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the cloud platform and push summaries to the monitoring backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}

	root := &cobra.Command{
		Use:          "skynet-agent",
		Short:        "Bridge OpenStack infrastructure metrics into Zabbix",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         runCmd.RunE,
		Version:      version.Version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	pushCmd := &cobra.Command{
		Use:   "push <items.json>",
		Short: "Push a JSON array of sender items once and print the acknowledgement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readItems(args[0])
			if err != nil {
				return err
			}
			a, err := load()
			if err != nil {
				return err
			}
			resp, err := a.Push(cmd.Context(), items)
			if err != nil {
				return fmt.Errorf("push: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.String())
			if !resp.Success() {
				return errors.New("push not acknowledged")
			}
			return nil
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the monitoring backend accepts the configured credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			if !a.IsActive(cmd.Context()) {
				return errors.New("backend is not active")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "backend is active")
			return nil
		},
	}

	root.AddCommand(runCmd, pushCmd, checkCmd)
	return root
}

// readItems decodes a JSON array of sender items, or a full sender request
// object, from path.
func readItems(path string) ([]model.SenderItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	var items []model.SenderItem
	if err := json.Unmarshal(raw, &items); err == nil {
		return validateItems(items)
	}
	var req model.SenderRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decode items %s: %w", path, err)
	}
	return validateItems(req.Data)
}

func validateItems(items []model.SenderItem) ([]model.SenderItem, error) {
	if len(items) == 0 {
		return nil, errors.New("no items to push")
	}
	for i, it := range items {
		if it.Host == "" || it.Key == "" {
			return nil, fmt.Errorf("item %d: host and key are required", i)
		}
	}
	return items, nil
}
