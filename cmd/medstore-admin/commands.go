package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/prn-tf/medstore/internal/app"
	"github.com/prn-tf/medstore/internal/domain"
	"github.com/prn-tf/medstore/internal/pkg/crypto"
	"github.com/prn-tf/medstore/internal/service"
)

var errOperatorRequired = errors.New("operator credentials required: use --admin-user/--admin-password or MEDSTORE_ADMIN_USER/MEDSTORE_ADMIN_PASSWORD")

type cli struct {
	app      *app.App
	out      io.Writer
	operator string
	password string
}

// signIn authenticates the operator so the service gates apply.
func (c *cli) signIn(ctx context.Context) error {
	if c.operator == "" || c.password == "" {
		return errOperatorRequired
	}
	_, err := c.app.Auth.Authenticate(ctx, c.operator, c.password)
	return err
}

func (c *cli) signOut() {
	if c.app.Auth.IsAuthenticated() {
		_ = c.app.Auth.Logout()
	}
}

func (c *cli) bootstrap(ctx context.Context, args []string) error {
	b := c.app.Config.Auth.BootstrapAdmin
	fs := pflag.NewFlagSet("bootstrap", pflag.ContinueOnError)
	username := fs.String("username", b.Username, "administrator username")
	password := fs.String("password", b.Password, "administrator password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	created, err := c.app.Auth.EnsureDefaultAdministrator(ctx, *username, *password)
	if err != nil {
		return err
	}
	if !created {
		fmt.Fprintln(c.out, "accounts already exist; nothing to do")
		return nil
	}
	fmt.Fprintf(c.out, "administrator %q created; change its password after first sign-in\n", *username)
	return nil
}

func (c *cli) user(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: user <create|list|activate|deactivate|delete|reset-password> [flags]")
	}
	if err := c.signIn(ctx); err != nil {
		return err
	}
	defer c.signOut()

	sub, args := args[0], args[1:]
	switch sub {
	case "create":
		return c.userCreate(ctx, args)
	case "list":
		return c.userList(ctx, args)
	case "activate":
		return c.withID(args, func(id int64) error { return c.app.Auth.ActivateAccount(ctx, id) }, "activated")
	case "deactivate":
		return c.withID(args, func(id int64) error { return c.app.Auth.DeactivateAccount(ctx, id) }, "deactivated")
	case "delete":
		return c.withID(args, func(id int64) error { return c.app.Auth.DeleteAccount(ctx, id) }, "deleted")
	case "reset-password":
		return c.userResetPassword(ctx, args)
	default:
		return fmt.Errorf("unknown user command %q", sub)
	}
}

func (c *cli) userCreate(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("user create", pflag.ContinueOnError)
	username := fs.String("username", "", "login name")
	password := fs.String("password", "", "initial password")
	role := fs.String("role", string(domain.RoleCashier), "admin or cashier")
	fullName := fs.String("full-name", "", "display name")
	email := fs.String("email", "", "email address")
	phone := fs.String("phone", "", "phone number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := domain.ParseRole(*role)
	if err != nil {
		return err
	}
	account, err := c.app.Auth.CreateAccount(ctx, service.CreateAccountInput{
		Username: *username,
		Password: *password,
		Role:     r,
		FullName: *fullName,
		Email:    *email,
		Phone:    *phone,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "account %d (%s, %s) created\n", account.ID, account.Username, account.Role)
	return nil
}

func (c *cli) userList(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("user list", pflag.ContinueOnError)
	role := fs.String("role", "", "filter by role")
	limit := fs.Int("limit", service.DefaultListLimit, "page size")
	offset := fs.Int("offset", 0, "rows to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	input := service.ListAccountsInput{Limit: *limit, Offset: *offset}
	if *role != "" {
		r, err := domain.ParseRole(*role)
		if err != nil {
			return err
		}
		input.Role = &r
	}

	result, err := c.app.Auth.ListAccounts(ctx, input)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tROLE\tACTIVE\tNAME\tLAST LOGIN")
	for _, a := range result.Items {
		lastLogin := "-"
		if a.LastLoginAt != nil {
			lastLogin = a.LastLoginAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\t%s\n", a.ID, a.Username, a.Role, a.IsActive, a.DisplayName(), lastLogin)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%d of %d accounts\n", len(result.Items), result.Total)
	return nil
}

func (c *cli) userResetPassword(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("user reset-password", pflag.ContinueOnError)
	password := fs.String("password", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.withID(fs.Args(), func(id int64) error {
		_, err := c.app.Auth.UpdateAccount(ctx, id, service.UpdateAccountInput{Password: password})
		return err
	}, "password reset")
}

func (c *cli) withID(args []string, op func(id int64) error, done string) error {
	if len(args) != 1 {
		return errors.New("expected exactly one account ID")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid account ID %q", args[0])
	}
	if err := op(id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "account %d %s\n", id, done)
	return nil
}

func (c *cli) backup(ctx context.Context, args []string) error {
	sub := "create"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}

	svc, err := c.app.BackupService(ctx)
	if err != nil {
		return err
	}
	if err := c.signIn(ctx); err != nil {
		return err
	}
	defer c.signOut()

	switch sub {
	case "create":
		result, err := svc.Create(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "snapshot %s stored (%d bytes, sha256 %s)\n", result.Key, result.Size, result.SHA256)
		return nil
	case "list":
		keys, err := svc.List(ctx)
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Fprintln(c.out, key)
		}
		return nil
	case "restore":
		fs := pflag.NewFlagSet("backup restore", pflag.ContinueOnError)
		dest := fs.StringP("out", "o", "medstore-restored.db", "file to write the restored database to")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("usage: backup restore <key> [--out FILE]")
		}
		if err := svc.Restore(ctx, fs.Arg(0), *dest); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "snapshot restored to %s; stop the server and replace the database file to use it\n", *dest)
		return nil
	case "prune":
		deleted, err := svc.Prune(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%d snapshots deleted\n", len(deleted))
		return nil
	default:
		return fmt.Errorf("unknown backup command %q", sub)
	}
}

func keygen(out io.Writer) error {
	key, err := crypto.GenerateMasterKey()
	if err != nil {
		return err
	}
	secret, err := crypto.GenerateTokenSecret()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "MEDSTORE_BACKUP_ENCRYPTION_KEY=%s\n", key)
	fmt.Fprintf(out, "MEDSTORE_AUTH_TOKEN_SECRET=%s\n", secret)
	return nil
}
