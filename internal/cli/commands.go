/**
 * @description
 * Subcommand definitions for ledgerctl. Each command parses its arguments,
 * invokes the corresponding transfer engine operation, and prints the result.
 * Amounts are accepted and printed as decimal strings ("1000.00"); conversion
 * to ledger cents happens at this boundary.
 */

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/corebank/ledger-service/internal/config"
	"github.com/corebank/ledger-service/internal/domain"
	"github.com/corebank/ledger-service/internal/money"
	"github.com/corebank/ledger-service/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(".")
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL must be configured")
			}
			if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func newOpenAccountCmd() *cobra.Command {
	var ownerFlag string
	var initialBalanceFlag string

	cmd := &cobra.Command{
		Use:   "open-account",
		Short: "Open a new account for an owner",
		RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
			ownerID, err := uuid.Parse(ownerFlag)
			if err != nil {
				return fmt.Errorf("invalid owner id %q: %w", ownerFlag, err)
			}
			initialBalance, err := money.ParseCents(initialBalanceFlag)
			if err != nil {
				return err
			}
			account, err := rt.service.OpenAccount(ctx, ownerID, initialBalance)
			if err != nil {
				return err
			}
			fmt.Printf("account %s opened with balance %s\n", account.ID, money.FormatCents(account.Balance))
			return nil
		}),
	}
	cmd.Flags().StringVar(&ownerFlag, "owner", "", "owner user id (uuid)")
	cmd.Flags().StringVar(&initialBalanceFlag, "initial-balance", "0.00", "opening balance")
	cmd.MarkFlagRequired("owner")
	return cmd
}

func newAccountsCmd() *cobra.Command {
	var ownerFlag string

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List an owner's accounts",
		RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
			ownerID, err := uuid.Parse(ownerFlag)
			if err != nil {
				return fmt.Errorf("invalid owner id %q: %w", ownerFlag, err)
			}
			accounts, err := rt.service.ListAccounts(ctx, ownerID)
			if err != nil {
				return err
			}
			for _, account := range accounts {
				fmt.Printf("%s\t%s\n", account.ID, money.FormatCents(account.Balance))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&ownerFlag, "owner", "", "owner user id (uuid)")
	cmd.MarkFlagRequired("owner")
	return cmd
}

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account-id>",
		Short: "Show an account's current balance",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
			accountID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id %q: %w", args[0], err)
			}
			balance, err := rt.service.GetBalance(ctx, accountID)
			if err != nil {
				return err
			}
			fmt.Println(money.FormatCents(balance))
			return nil
		}),
	}
}

func newDepositCmd() *cobra.Command {
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "deposit <account-id> <amount>",
		Short: "Credit an account",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
			accountID, amount, err := parseAccountAndAmount(args[0], args[1])
			if err != nil {
				return err
			}
			if err := rt.service.ReserveIdempotencyKey(ctx, idempotencyKey); err != nil {
				return err
			}
			newBalance, err := rt.service.Deposit(ctx, accountID, amount)
			if err != nil {
				return err
			}
			fmt.Printf("deposited %s, new balance %s\n", money.FormatCents(amount), money.FormatCents(newBalance))
			return nil
		}),
	}
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "reject duplicate submissions sharing this key")
	return cmd
}

func newWithdrawCmd() *cobra.Command {
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "withdraw <account-id> <amount>",
		Short: "Debit an account",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
			accountID, amount, err := parseAccountAndAmount(args[0], args[1])
			if err != nil {
				return err
			}
			if err := rt.service.ReserveIdempotencyKey(ctx, idempotencyKey); err != nil {
				return err
			}
			newBalance, err := rt.service.Withdraw(ctx, accountID, amount)
			if err != nil {
				return err
			}
			fmt.Printf("withdrew %s, new balance %s\n", money.FormatCents(amount), money.FormatCents(newBalance))
			return nil
		}),
	}
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "reject duplicate submissions sharing this key")
	return cmd
}

func newTransferCmd() *cobra.Command {
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "transfer <from-account-id> <to-account-id> <amount>",
		Short: "Move funds between two accounts",
		Args:  cobra.ExactArgs(3),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
			fromID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid source account id %q: %w", args[0], err)
			}
			toID, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid destination account id %q: %w", args[1], err)
			}
			amount, err := money.ParseCents(args[2])
			if err != nil {
				return err
			}
			if err := rt.service.ReserveIdempotencyKey(ctx, idempotencyKey); err != nil {
				return err
			}
			if err := rt.service.InternalTransfer(ctx, fromID, toID, amount); err != nil {
				return err
			}
			fmt.Printf("transferred %s from %s to %s\n", money.FormatCents(amount), fromID, toID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "reject duplicate submissions sharing this key")
	return cmd
}

func newExternalTransferCmd() *cobra.Command {
	var idempotencyKey string
	var limitFlag string

	cmd := &cobra.Command{
		Use:   "external-transfer <from-account-id> <destination> <amount>",
		Short: "Debit an account for a transfer leaving the system",
		Args:  cobra.ExactArgs(3),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
			fromID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid source account id %q: %w", args[0], err)
			}
			destination := args[1]
			amount, err := money.ParseCents(args[2])
			if err != nil {
				return err
			}
			limit := rt.cfg.ExternalTransferLimitCents
			if limitFlag != "" {
				limit, err = money.ParseCents(limitFlag)
				if err != nil {
					return err
				}
			}
			if err := rt.service.ReserveIdempotencyKey(ctx, idempotencyKey); err != nil {
				return err
			}
			if err := rt.service.ExternalTransfer(ctx, fromID, destination, amount, limit); err != nil {
				return err
			}
			fmt.Printf("external transfer of %s to %s submitted\n", money.FormatCents(amount), destination)
			return nil
		}),
	}
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "reject duplicate submissions sharing this key")
	cmd.Flags().StringVar(&limitFlag, "limit", "", "override the configured per-transfer limit")
	return cmd
}

func newTransactionsCmd() *cobra.Command {
	var fromFlag, toFlag string
	var ascending bool

	cmd := &cobra.Command{
		Use:   "transactions <account-id>",
		Short: "List an account's ledger entries, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
			accountID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id %q: %w", args[0], err)
			}
			var rng domain.TimeRange
			if fromFlag != "" {
				from, err := time.Parse(time.RFC3339, fromFlag)
				if err != nil {
					return fmt.Errorf("invalid --from value %q: %w", fromFlag, err)
				}
				rng.From = &from
			}
			if toFlag != "" {
				to, err := time.Parse(time.RFC3339, toFlag)
				if err != nil {
					return fmt.Errorf("invalid --to value %q: %w", toFlag, err)
				}
				rng.To = &to
			}
			order := domain.OrderDescending
			if ascending {
				order = domain.OrderAscending
			}
			entries, err := rt.service.ListTransactions(ctx, accountID, rng, order)
			if err != nil {
				return err
			}
			printEntries(entries)
			return nil
		}),
	}
	cmd.Flags().StringVar(&fromFlag, "from", "", "inclusive lower bound (RFC 3339)")
	cmd.Flags().StringVar(&toFlag, "to", "", "exclusive upper bound (RFC 3339)")
	cmd.Flags().BoolVar(&ascending, "asc", false, "oldest first")
	return cmd
}

func newStatementCmd() *cobra.Command {
	var year, month int

	cmd := &cobra.Command{
		Use:   "statement <account-id>",
		Short: "Show an account's entries for one calendar month, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, args []string) error {
			accountID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id %q: %w", args[0], err)
			}
			entries, err := rt.service.MonthlyStatement(ctx, accountID, year, month)
			if err != nil {
				return err
			}
			printEntries(entries)
			return nil
		}),
	}
	cmd.Flags().IntVar(&year, "year", 0, "statement year")
	cmd.Flags().IntVar(&month, "month", 0, "statement month (1-12)")
	cmd.MarkFlagRequired("year")
	cmd.MarkFlagRequired("month")
	return cmd
}

func parseAccountAndAmount(accountArg, amountArg string) (uuid.UUID, int64, error) {
	accountID, err := uuid.Parse(accountArg)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("invalid account id %q: %w", accountArg, err)
	}
	amount, err := money.ParseCents(amountArg)
	if err != nil {
		return uuid.Nil, 0, err
	}
	return accountID, amount, nil
}

func printEntries(entries []domain.Transaction) {
	for _, entry := range entries {
		fmt.Printf("%s\t%-22s\t%12s\t%s\n",
			entry.PostedAt.UTC().Format(time.RFC3339),
			entry.Kind,
			money.FormatCents(entry.Amount),
			entry.ID,
		)
	}
}
