package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/tollgate/pkg/app"
)

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Run or manage tollgate as a system service",
	}
	cmd.AddCommand(serviceRunCmd(), serviceInstallCmd(), serviceUninstallCmd())
	return cmd
}

// serviceConfig describes the installed unit. Arguments point back at
// `tollgate service run` so the manager launches the long-running form.
func serviceConfig(cfgPath, serverID string) *service.Config {
	args := []string{"service", "run"}
	if cfgPath != "" {
		args = append(args, "--config", cfgPath)
	}
	if serverID != "" {
		args = append(args, serverID)
	}
	return &service.Config{
		Name:        "tollgate",
		DisplayName: "Tollgate",
		Description: "Approval-gating proxy for MCP tool servers",
		Arguments:   args,
	}
}

// program adapts app.Run to the service manager's start/stop protocol.
// Start must return promptly, so Run goes to a goroutine and Stop delivers
// the same SIGTERM an interactive shutdown would.
type program struct {
	params app.RunParams
	done   chan error
}

func (p *program) Start(service.Service) error {
	p.done = make(chan error, 1)
	go func() { p.done <- app.Run(p.params) }()
	return nil
}

func (p *program) Stop(service.Service) error {
	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	select {
	case err := <-p.done:
		return err
	case <-time.After(30 * time.Second):
		return errors.New("service stop timed out")
	}
}

func serviceRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [server]",
		Short: "Run under the service manager",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := runParams(cmd, args)
			if err != nil {
				return err
			}
			svc, err := service.New(&program{params: params}, serviceConfig("", ""))
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}
	addServeFlags(cmd)
	return cmd
}

func serviceInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [server]",
		Short: "Install the system service",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			var serverID string
			if len(args) == 1 {
				serverID = args[0]
			}
			svc, err := service.New(&program{}, serviceConfig(cfgPath, serverID))
			if err != nil {
				return err
			}
			if err := svc.Install(); err != nil {
				return err
			}
			fmt.Println("Service installed.")
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func serviceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the system service",
		RunE: func(_ *cobra.Command, _ []string) error {
			svc, err := service.New(&program{}, serviceConfig("", ""))
			if err != nil {
				return err
			}
			if err := svc.Uninstall(); err != nil {
				return err
			}
			fmt.Println("Service removed.")
			return nil
		},
	}
}
