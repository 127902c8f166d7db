/*
AUTHORS
  Open LMS (https://www.openlms.net)

LICENSE
  Copyright (C) 2018-2026 Open LMS (https://www.openlms.net)

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  This is distributed in the hope that it will be useful, but WITHOUT
  ANY WARRANTY; without even the implied warranty of MERCHANTABILITY
  or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public
  License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package main

import (
	"errors"
	"fmt"

	"github.com/ausocean/openfish/datastore"
	"github.com/spf13/cobra"

	"github.com/open-lms-open-source/moodle-local-drift/drift"
	"github.com/open-lms-open-source/moodle-local-drift/model"
	"github.com/open-lms-open-source/moodle-local-drift/privacy"
)

func settingsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the plugin settings",
	}

	var showKey bool
	get := &cobra.Command{
		Use:   "get",
		Short: "Show the plugin settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := drift.LoadSettings(cmd.Context(), a.store)
			if err != nil {
				return err
			}
			key := drift.MaskKey(s.ClientKey)
			if showKey {
				key = s.ClientKey
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", model.SettingClientKey, key)
			fmt.Fprintf(out, "%s: %s\n", model.SettingRoles, drift.JoinAllowList(s.Roles))
			fmt.Fprintf(out, "%s: %t\n", model.SettingUsageMetrics, s.UsageMetrics)
			return nil
		},
	}
	get.Flags().BoolVar(&showKey, "show-key", false, "print the client key unmasked")

	var key, roles string
	var metrics bool
	set := &cobra.Command{
		Use:   "set",
		Short: "Change the plugin settings given by flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := drift.LoadSettings(cmd.Context(), a.store)
			if err != nil {
				return err
			}
			fs := cmd.Flags()
			if fs.Changed(model.SettingClientKey) {
				s.ClientKey = key
			}
			if fs.Changed(model.SettingRoles) {
				s.Roles = drift.ParseAllowList(roles)
			}
			if fs.Changed(model.SettingUsageMetrics) {
				s.UsageMetrics = metrics
			}
			err = drift.SaveSettings(cmd.Context(), a.store, s)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "settings saved")
			return nil
		},
	}
	fs := set.Flags()
	fs.StringVar(&key, model.SettingClientKey, "", "Drift client key, empty to disable Drift")
	fs.StringVar(&roles, model.SettingRoles, "", "comma separated role shortnames that may use Drift")
	fs.BoolVar(&metrics, model.SettingUsageMetrics, false, "send usage and licensing figures")

	list := &cobra.Command{
		Use:   "list",
		Short: "List every stored plugin setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := model.GetSettings(cmd.Context(), a.store, model.Plugin)
			if err != nil {
				return err
			}
			for _, s := range settings {
				v := s.Value
				if s.Name == model.SettingClientKey && !showKey {
					v = drift.MaskKey(v)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s.%s: %s\n", s.Plugin, s.Name, v)
			}
			return nil
		},
	}
	list.Flags().BoolVar(&showKey, "show-key", false, "print the client key unmasked")

	allow := &cobra.Command{
		Use:   "allow <shortname>...",
		Short: "Add roles to the allow-list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateRoles(cmd, a, func(roles []string) []string { return append(roles, args...) })
		},
	}

	deny := &cobra.Command{
		Use:   "deny <shortname>...",
		Short: "Remove roles from the allow-list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateRoles(cmd, a, func(roles []string) []string {
				denied := make(map[string]bool, len(args))
				for _, r := range args {
					denied[r] = true
				}
				var kept []string
				for _, r := range roles {
					if !denied[r] {
						kept = append(kept, r)
					}
				}
				return kept
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete the plugin settings, restoring the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := model.GetSettings(cmd.Context(), a.store, model.Plugin)
			if err != nil {
				return err
			}
			for _, s := range settings {
				switch s.Name {
				case model.SettingClientKey, model.SettingRoles, model.SettingUsageMetrics:
				default:
					continue
				}
				err = model.DeleteSetting(cmd.Context(), a.store, model.Plugin, s.Name)
				if err != nil {
					return fmt.Errorf("could not delete setting %s: %w", s.Name, err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "settings reset")
			return nil
		},
	}

	cmd.AddCommand(get, set, list, allow, deny, reset)
	return cmd
}

// updateRoles atomically applies fn to the stored allow-list and prints
// the result.
func updateRoles(cmd *cobra.Command, a *app, fn func(roles []string) []string) error {
	var roles string
	err := model.UpdateSetting(cmd.Context(), a.store, model.Plugin, model.SettingRoles, func(current string) string {
		roles = drift.JoinAllowList(fn(drift.ParseAllowList(current)))
		return roles
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", model.SettingRoles, roles)
	return nil
}

func subscriptionCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscription",
		Short: "Show or change user subscriptions",
	}

	get := &cobra.Command{
		Use:   "get <userid>",
		Short: "Show a user's subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			s, err := model.GetSubscription(cmd.Context(), a.store, uid)
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				fmt.Fprintf(cmd.OutOrStdout(), "user %d: no subscription\n", uid)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d: subscribed %s\n", uid, yesNo(s.Subscribed))
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <userid> <yes|no>",
		Short: "Change a user's subscription",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			subscribed, err := parseYesNo(args[1])
			if err != nil {
				return fmt.Errorf("invalid subscription %q", args[1])
			}
			err = model.SetSubscription(cmd.Context(), a.store, uid, subscribed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d: subscribed %s\n", uid, yesNo(subscribed))
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subs, err := model.GetSubscriptions(cmd.Context(), a.store)
			if err != nil {
				return err
			}
			for _, s := range subs {
				fmt.Fprintf(cmd.OutOrStdout(), "user %d: subscribed %s\n", s.UserID, yesNo(s.Subscribed))
			}
			return nil
		},
	}

	cmd.AddCommand(get, set, list)
	return cmd
}

func privacyCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "privacy",
		Short: "Export or delete a user's personal data",
	}

	// approved returns the provider and an approval of the user's own context.
	approved := func(cmd *cobra.Command, arg string) (*privacy.Provider, privacy.ApprovedContextList, error) {
		uid, err := parseUserID(arg)
		if err != nil {
			return nil, privacy.ApprovedContextList{}, err
		}
		p := privacy.NewProvider(a.store, a.contexts)
		c, err := p.Contexts.UserContext(cmd.Context(), uid)
		if err != nil {
			return nil, privacy.ApprovedContextList{}, err
		}
		return p, privacy.ApprovedContextList{UserID: uid, ContextIDs: []int64{c.ID}}, nil
	}

	var dir string
	export := &cobra.Command{
		Use:   "export <userid>",
		Short: "Export a user's personal data as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, list, err := approved(cmd, args[0])
			if err != nil {
				return err
			}
			w, err := privacy.NewFileWriter(dir)
			if err != nil {
				return err
			}
			err = p.ExportUserData(cmd.Context(), list, w)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), w.Dir)
			return nil
		},
	}
	export.Flags().StringVar(&dir, "dir", "exports", "directory to create the export in")

	del := &cobra.Command{
		Use:   "delete <userid>",
		Short: "Delete a user's personal data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, list, err := approved(cmd, args[0])
			if err != nil {
				return err
			}
			err = p.DeleteDataForUser(cmd.Context(), list)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted data for user %d\n", list.UserID)
			return nil
		},
	}

	cmd.AddCommand(export, del)
	return cmd
}

func upgradeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade the stored data model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := model.InstalledVersion(cmd.Context(), a.store)
			if err != nil {
				return err
			}
			nv, err := model.Upgrade(cmd.Context(), a.store, v)
			if err != nil {
				return err
			}
			if nv == v {
				fmt.Fprintf(cmd.OutOrStdout(), "up to date at %d\n", nv)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "upgraded from %d to %d\n", v, nv)
			return nil
		},
	}
}
