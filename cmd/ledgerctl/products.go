package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jmerrifield20/SupplyChainLedger/pkg/client"
)

var (
	username string
	password string
)

// addAuthFlags registers the credentials a write command signs in with.
func addAuthFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&username, "user", "u", "", "username from the credential file")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (default $LEDGER_PASSWORD)")
	_ = cmd.MarkFlagRequired("user")
}

// withSession opens the ledger, signs in and runs fn.
func withSession(cmd *cobra.Command, fn func(l ledgerAPI) error) error {
	return withLedger(cmd, func(l ledgerAPI) error {
		pw := password
		if pw == "" {
			pw = os.Getenv("LEDGER_PASSWORD")
		}
		if err := l.Login(cmd.Context(), username, pw); err != nil {
			return fmt.Errorf("sign in as %s: %w", username, err)
		}
		return fn(l)
	})
}

func withLedger(cmd *cobra.Command, fn func(l ledgerAPI) error) error {
	l, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(l)
}

// ── create ───────────────────────────────────────────────────────────────────

var createReq client.CreateProductRequest

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new product (Producer)",
	Example: `  ledgerctl create -u farmer -p farmer123 --name Mango --location "Amritsar, Punjab"`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(l ledgerAPI) error {
			rec, err := l.CreateProduct(cmd.Context(), createReq)
			if err != nil {
				return err
			}
			return printRecord(cmd, rec)
		})
	},
}

// ── transfer ─────────────────────────────────────────────────────────────────

var transferReq client.TransferRequest

var transferCmd = &cobra.Command{
	Use:   "transfer <product-id>",
	Short: "Record an intermediary hand-off",
	Example: `  ledgerctl transfer PRD-7F3A21 -u wholesaler -p wholesaler123 --location Hub-A --status In-Transit`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(l ledgerAPI) error {
			rec, err := l.RecordTransfer(cmd.Context(), args[0], transferReq)
			if err != nil {
				return err
			}
			return printRecord(cmd, rec)
		})
	},
}

// ── deliver ──────────────────────────────────────────────────────────────────

var deliveryReq client.DeliveryRequest

var deliverCmd = &cobra.Command{
	Use:   "deliver <product-id>",
	Short: "Confirm delivery as the consumer",
	Example: `  ledgerctl deliver PRD-7F3A21 -u customer -p customer123 \
    --customer "Customer E" --address Delhi --payment UPI --status Delivered`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(l ledgerAPI) error {
			rec, err := l.ConfirmDelivery(cmd.Context(), args[0], deliveryReq)
			if err != nil {
				return err
			}
			return printRecord(cmd, rec)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{createCmd, transferCmd, deliverCmd} {
		addAuthFlags(c)
	}

	createCmd.Flags().StringVar(&createReq.ProductID, "id", "", "product id (generated when empty)")
	createCmd.Flags().StringVar(&createReq.ProductName, "name", "", "product name")
	createCmd.Flags().StringVar(&createReq.Location, "location", "", "origin location")
	createCmd.Flags().StringVar(&createReq.PaymentMethod, "payment", "", "payment method (default N/A)")

	transferCmd.Flags().StringVar(&transferReq.Location, "location", "", "current location")
	transferCmd.Flags().StringVar(&transferReq.Status, "status", "", "new status, e.g. In-Transit")
	transferCmd.Flags().StringVar(&transferReq.PaymentMethod, "payment", "", "payment method")
	transferCmd.Flags().StringVar(&transferReq.Notes, "notes", "", "free-text notes")

	deliverCmd.Flags().StringVar(&deliveryReq.CustomerName, "customer", "", "customer name")
	deliverCmd.Flags().StringVar(&deliveryReq.Phone, "phone", "", "customer phone")
	deliverCmd.Flags().StringVar(&deliveryReq.Email, "email", "", "customer email")
	deliverCmd.Flags().StringVar(&deliveryReq.Address, "address", "", "delivery address")
	deliverCmd.Flags().StringVar(&deliveryReq.Status, "status", "Delivered", "Pending, Delivered, Returned or Cancelled")
	deliverCmd.Flags().StringVar(&deliveryReq.PaymentMethod, "payment", "", "payment method")
}

// ── journey ──────────────────────────────────────────────────────────────────

var journeyCmd = &cobra.Command{
	Use:   "journey <product-id>",
	Short: "Show every record of a product in order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(l ledgerAPI) error {
			rows, err := l.Journey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no records for %s\n", args[0])
				return nil
			}
			tw := newTable(cmd)
			tw.AppendHeader(table.Row{"#", "Time", "Role", "Actor", "Location", "Status", "Payment", "Link"})
			for _, r := range rows {
				tw.AppendRow(table.Row{
					r.SequenceNumber, r.Timestamp.Format(time.DateTime), r.ActorRole, r.ActorName,
					r.Location, r.Status, r.PaymentMethod, shortLink(r.Link),
				})
			}
			tw.Render()
			return nil
		})
	},
}

// ── summary ──────────────────────────────────────────────────────────────────

var summaryCmd = &cobra.Command{
	Use:   "summary <product-id>",
	Short: "Show the latest state of a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(l ledgerAPI) error {
			sum, err := l.Summary(cmd.Context(), args[0])
			if errors.Is(err, client.ErrNotFound) {
				return fmt.Errorf("no data found for %s", args[0])
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, sum)
			}
			tw := newTable(cmd)
			tw.AppendRows([]table.Row{
				{"Product", sum.SubjectID},
				{"Name", sum.ProductName},
				{"Origin", fmt.Sprintf("%s (%s, %s)", sum.OriginLocation, sum.OriginActor, sum.OriginRole)},
				{"Created", sum.CreatedAt.Format(time.DateTime)},
				{"Status", sum.CurrentStatus},
				{"Location", sum.CurrentLocation},
				{"Held by", fmt.Sprintf("%s (%s)", sum.CurrentActor, sum.CurrentRole)},
				{"Payment", sum.PaymentMethod},
				{"Updated", sum.UpdatedAt.Format(time.DateTime)},
				{"Entries", fmt.Sprintf("%d (seq %d..%d)", sum.Entries, sum.FirstSequence, sum.LastSequence)},
			})
			tw.Render()
			return nil
		})
	},
}

// ── products ─────────────────────────────────────────────────────────────────

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List every product on the ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(l ledgerAPI) error {
			products, err := l.Products(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, products)
			}
			tw := newTable(cmd)
			tw.AppendHeader(table.Row{"ID", "Name", "Status", "Location", "Entries", "Updated"})
			for _, p := range products {
				tw.AppendRow(table.Row{p.SubjectID, p.ProductName, p.CurrentStatus, p.CurrentLocation, p.Entries, p.UpdatedAt.Format(time.DateTime)})
			}
			tw.AppendFooter(table.Row{"", "", "", "Total", len(products), ""})
			tw.Render()
			return nil
		})
	},
}

func printRecord(cmd *cobra.Command, rec *client.Record) error {
	if jsonOutput {
		return printJSON(cmd, rec)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "recorded %s for %s at sequence %d (link %s)\n",
		rec.Status, rec.SubjectID, rec.SequenceNumber, shortLink(rec.Link))
	return nil
}

func newTable(cmd *cobra.Command) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.SetStyle(table.StyleLight)
	return tw
}

func shortLink(link string) string {
	if len(link) > 12 {
		return link[:12]
	}
	return link
}
