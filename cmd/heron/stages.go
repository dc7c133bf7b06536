package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func stagesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "inspect the stages built into this binary",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "list registered stages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRegistry()
			if err != nil {
				return err
			}
			for _, name := range r.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}, &cobra.Command{
		Use:   "show NAME",
		Short: "print a stage descriptor as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRegistry()
			if err != nil {
				return err
			}
			st, ok := r.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown stage %q", args[0])
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(st.Descriptor); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	return cmd
}
