// Package admin は管理CLI（meetctl）のコマンドを提供する。
// 面接官ロールの付与はAPIからは行えず、このCLIからのみ実行する。
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/codemeet/internal/model"
)

// Directory は管理CLIが操作するディレクトリレコードのインターフェース。
// user.Serviceが実装する。
type Directory interface {
	RoleOf(ctx context.Context, externalID string) (model.RoleView, error)
	SetRole(ctx context.Context, externalID string, role model.Role) error
	List(ctx context.Context) ([]*model.User, error)
}

// Opener はコマンド実行時にDirectoryを開く。返されたcloseは実行後に必ず呼ばれる。
type Opener func(ctx context.Context) (dir Directory, closeFn func() error, err error)

const commandTimeout = 30 * time.Second

// NewRootCommand はmeetctlのルートコマンドを生成する。
func NewRootCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "meetctl",
		Short:         "codemeet administration tool",
		Long:          "Manage codemeet directory records and interviewer roles.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newRoleCommand(open))
	cmd.AddCommand(newUsersCommand(open))
	return cmd
}

func newRoleCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Inspect or change a user's role",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <externalId> <interviewer|candidate>",
		Short: "Set the role of a user",
		Example: `  # Grant the interviewer role
  meetctl role set user_2abc interviewer`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := model.Role(args[1])
			if !role.Valid() {
				return fmt.Errorf("unknown role %q: must be %q or %q", args[1], model.RoleInterviewer, model.RoleCandidate)
			}
			return withDirectory(cmd.Context(), open, func(ctx context.Context, dir Directory) error {
				if err := dir.SetRole(ctx, args[0], role); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], role)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <externalId>",
		Short: "Show the role of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd.Context(), open, func(ctx context.Context, dir Directory) error {
				view, err := dir.RoleOf(ctx, args[0])
				if err != nil {
					return err
				}
				role := model.RoleCandidate
				if view.IsInterviewer {
					role = model.RoleInterviewer
				}
				fmt.Fprintln(cmd.OutOrStdout(), role)
				return nil
			})
		},
	})

	return cmd
}

func newUsersCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Directory record commands",
	}

	var (
		roleFilter string
		asJSON     bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List directory records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if roleFilter != "" && !model.Role(roleFilter).Valid() {
				return fmt.Errorf("unknown role %q", roleFilter)
			}
			return withDirectory(cmd.Context(), open, func(ctx context.Context, dir Directory) error {
				users, err := dir.List(ctx)
				if err != nil {
					return err
				}
				users = filterByRole(users, model.Role(roleFilter))
				if asJSON {
					return writeUsersJSON(cmd.OutOrStdout(), users)
				}
				return writeUsersTable(cmd.OutOrStdout(), users)
			})
		},
	}
	list.Flags().StringVar(&roleFilter, "role", "", "Only list users with this role (interviewer, candidate)")
	list.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")

	cmd.AddCommand(list)
	return cmd
}

func withDirectory(ctx context.Context, open Opener, fn func(context.Context, Directory) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	dir, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	return fn(ctx, dir)
}

func filterByRole(users []*model.User, role model.Role) []*model.User {
	if role == "" {
		return users
	}
	out := make([]*model.User, 0, len(users))
	for _, u := range users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out
}

func writeUsersTable(w io.Writer, users []*model.User) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXTERNAL ID\tNAME\tEMAIL\tROLE\tCREATED")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			u.ExternalID, u.Name, u.Email, u.Role, u.CreatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

type userRecord struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
}

func writeUsersJSON(w io.Writer, users []*model.User) error {
	records := make([]userRecord, 0, len(users))
	for _, u := range users {
		records = append(records, userRecord{
			ID:         u.ID,
			ExternalID: u.ExternalID,
			Name:       u.Name,
			Email:      u.Email,
			Role:       string(u.Role),
			CreatedAt:  u.CreatedAt,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
