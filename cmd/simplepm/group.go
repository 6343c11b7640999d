package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/simplepm/internal/app"
	"github.com/forest6511/simplepm/internal/cli"
	"github.com/forest6511/simplepm/pkg/vault"
)

// Group command flags
var (
	groupJSON     bool
	groupShowUUID bool
	groupIcon     int
	groupForce    bool
)

func init() {
	rootCmd.AddCommand(groupCmd)

	groupCmd.AddCommand(groupListCmd)
	groupCmd.AddCommand(groupCreateCmd)
	groupCmd.AddCommand(groupRenameCmd)
	groupCmd.AddCommand(groupDeleteCmd)
	groupCmd.AddCommand(groupMoveCmd)
	groupCmd.AddCommand(groupReorderCmd)

	groupListCmd.Flags().BoolVar(&groupJSON, "json", false, "Output in JSON format")
	groupListCmd.Flags().BoolVar(&groupShowUUID, "uuid", false, "Show group UUIDs")
	groupCreateCmd.Flags().IntVar(&groupIcon, "icon", -1, "Icon ID")
	groupRenameCmd.Flags().IntVar(&groupIcon, "icon", -1, "Icon ID")
	groupDeleteCmd.Flags().BoolVarP(&groupForce, "force", "f", false, "Skip confirmation prompt")
}

// groupCmd is the parent command for group operations.
var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Group operations",
	Long: `Manage the group tree.

Groups are addressed by UUID or by path below the root group
(e.g., "Work/APIs"). "/" is the root group itself.`,
}

// groupListCmd prints the group tree.
var groupListCmd = &cobra.Command{
	Use:   "list [group]",
	Short: "Show the group tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		root, err := rootGroup()
		if err != nil {
			return err
		}
		if len(args) > 0 {
			if root, err = cli.ResolveGroup(root, args[0]); err != nil {
				return err
			}
		}

		if groupJSON {
			return printJSON(root)
		}

		counts, err := entryCounts()
		if err != nil {
			return err
		}
		printGroupTree(root, counts, 0)
		return nil
	},
}

func printGroupTree(g vault.GroupData, counts map[string]int, depth int) {
	line := strings.Repeat("  ", depth) + g.Name
	if n := counts[g.UUID]; n > 0 {
		line += fmt.Sprintf(" (%d)", n)
	}
	if groupShowUUID {
		line += "  " + g.UUID
	}
	fmt.Println(line)
	for _, c := range g.Children {
		printGroupTree(c, counts, depth+1)
	}
}

// groupCreateCmd creates a group from its full path.
var groupCreateCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create a group",
	Long: `Create a group. The last path element is the new group's name; the
rest names an existing parent.

Examples:
  simplepm group create Work
  simplepm group create Work/APIs --icon 3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		parentPath, name := cli.SplitParent(args[0])
		if name == "" {
			return errors.New("group name must not be empty")
		}

		root, err := rootGroup()
		if err != nil {
			return err
		}
		parent, err := cli.ResolveGroup(root, parentPath)
		if err != nil {
			return fmt.Errorf("parent group: %w", err)
		}

		id, err := a.CreateGroup(name, parent.UUID, iconFlag(cmd))
		if err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}
		fmt.Printf("Created group: %s (ID: %s)\n", args[0], id)
		return nil
	},
}

var groupRenameCmd = &cobra.Command{
	Use:   "rename <group> <new-name>",
	Short: "Rename a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		g, err := resolveGroup(args[0])
		if err != nil {
			return err
		}
		if err := a.RenameGroup(g.UUID, args[1], iconFlag(cmd)); err != nil {
			return fmt.Errorf("failed to rename group: %w", err)
		}
		fmt.Printf("Renamed group '%s' to '%s'\n", g.Name, args[1])
		return nil
	},
}

var groupDeleteCmd = &cobra.Command{
	Use:   "delete <group>",
	Short: "Delete a group with its subgroups and entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		g, err := resolveGroup(args[0])
		if err != nil {
			return err
		}

		if !groupForce {
			counts, err := entryCounts()
			if err != nil {
				return err
			}
			n := subtreeEntries(g, counts)
			if !confirm(fmt.Sprintf("Delete group '%s' with %d subgroups and %d entries?", g.Name, countGroups(g)-1, n)) {
				fmt.Println("Aborted")
				return nil
			}
		}

		if err := a.DeleteGroup(g.UUID); err != nil {
			return fmt.Errorf("failed to delete group: %w", err)
		}
		fmt.Printf("Deleted group '%s'\n", g.Name)
		return nil
	},
}

var groupMoveCmd = &cobra.Command{
	Use:   "move <group> <new-parent>",
	Short: "Move a group under another parent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		g, err := resolveGroup(args[0])
		if err != nil {
			return err
		}
		parent, err := resolveGroup(args[1])
		if err != nil {
			return fmt.Errorf("new parent: %w", err)
		}
		if err := a.MoveGroup(g.UUID, parent.UUID); err != nil {
			return fmt.Errorf("failed to move group: %w", err)
		}
		fmt.Printf("Moved group '%s' under '%s'\n", g.Name, parent.Name)
		return nil
	},
}

var groupReorderCmd = &cobra.Command{
	Use:   "reorder <group> <index>",
	Short: "Change a group's position among its siblings",
	Long: `Move a group to a position among its sibling groups. Index 0 is the
first position; an index past the end moves the group last.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[1])
		if err != nil || index < 0 {
			return fmt.Errorf("invalid index: %s", args[1])
		}
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		g, err := resolveGroup(args[0])
		if err != nil {
			return err
		}
		if err := a.ReorderGroup(g.UUID, index); err != nil {
			return fmt.Errorf("failed to reorder group: %w", err)
		}
		fmt.Printf("Moved group '%s' to position %d\n", g.Name, index)
		return nil
	},
}

func rootGroup() (vault.GroupData, error) {
	return app.Query(a, func(db *vault.Database) (vault.GroupData, error) {
		return db.RootGroup(), nil
	})
}

func resolveGroup(selector string) (vault.GroupData, error) {
	root, err := rootGroup()
	if err != nil {
		return vault.GroupData{}, err
	}
	return cli.ResolveGroup(root, selector)
}

// entryCounts maps group UUIDs to the number of entries directly inside.
func entryCounts() (map[string]int, error) {
	return app.Query(a, func(db *vault.Database) (map[string]int, error) {
		counts := make(map[string]int)
		for _, e := range db.AllEntries() {
			counts[e.GroupUUID]++
		}
		return counts, nil
	})
}

func subtreeEntries(g vault.GroupData, counts map[string]int) int {
	n := counts[g.UUID]
	for _, c := range g.Children {
		n += subtreeEntries(c, counts)
	}
	return n
}

// iconFlag returns --icon when it was given.
func iconFlag(cmd *cobra.Command) *int {
	if !cmd.Flags().Changed("icon") {
		return nil
	}
	icon := groupIcon
	return &icon
}
