package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marcus-qen/monfront/internal/frontend/config"
	"github.com/marcus-qen/monfront/internal/frontend/dbutil"
	"github.com/marcus-qen/monfront/internal/frontend/session"
	"github.com/marcus-qen/monfront/internal/frontend/users"
)

var (
	userName     string
	userDisplay  string
	userPassword string
	userRole     string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage front end accounts directly in the database",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUserStore(func(store *users.Store, _ *dbutil.DB, _ config.Config) error {
			u, err := store.Create(userName, userDisplay, userPassword, userRole)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) with id %s\n", u.Username, u.Role, u.ID)
			return nil
		})
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Reset an account password and end its sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUserStore(func(store *users.Store, db *dbutil.DB, cfg config.Config) error {
			u, err := store.GetByUsername(userName)
			if err != nil {
				return err
			}
			if err := store.UpdatePassword(u.ID, userPassword); err != nil {
				return err
			}
			sessions, err := session.NewStore(db, cfg.Session.Lifetime.Std())
			if err != nil {
				return err
			}
			if err := sessions.DeleteByUser(u.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", u.Username)
			return nil
		})
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUserStore(func(store *users.Store, _ *dbutil.DB, _ config.Config) error {
			list, err := store.List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSERNAME\tROLE\tENABLED")
			for _, u := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", u.ID, u.Username, u.Role, u.Enabled)
			}
			return tw.Flush()
		})
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userName, "username", "", "account name")
	userAddCmd.Flags().StringVar(&userDisplay, "display-name", "", "display name")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "initial password")
	userAddCmd.Flags().StringVar(&userRole, "role", users.RoleUser, "user, admin or super_admin")
	_ = userAddCmd.MarkFlagRequired("username")
	_ = userAddCmd.MarkFlagRequired("password")

	userPasswdCmd.Flags().StringVar(&userName, "username", "", "account name")
	userPasswdCmd.Flags().StringVar(&userPassword, "password", "", "new password")
	_ = userPasswdCmd.MarkFlagRequired("username")
	_ = userPasswdCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userAddCmd, userPasswdCmd, userListCmd)
}

// withUserStore opens the configured database without starting the server.
func withUserStore(fn func(*users.Store, *dbutil.DB, config.Config) error) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	db, err := dbutil.Open(cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := users.NewStore(db)
	if err != nil {
		return err
	}
	return fn(store, db, cfg)
}
