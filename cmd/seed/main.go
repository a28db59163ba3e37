// cmd/seed populates a running ledgerd with demo product journeys for
// development. It signs in as the demo users written by 'ledgerctl init', so
// it only works while those credentials are unchanged.
//
// Running twice is safe: products that already have records are skipped.
//
// Usage:
//
//	go run ./cmd/seed
//	LEDGER_SERVER=http://localhost:8080 go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jmerrifield20/SupplyChainLedger/internal/identity"
	"github.com/jmerrifield20/SupplyChainLedger/pkg/client"
)

const defaultServer = "http://localhost:8080"

func main() {
	server := os.Getenv("LEDGER_SERVER")
	if server == "" {
		server = defaultServer
	}
	if err := run(context.Background(), server, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

// step is one hand-off after creation. Exactly one of transfer and delivery
// is set.
type step struct {
	user     string
	transfer *client.TransferRequest
	delivery *client.DeliveryRequest
}

type seedProduct struct {
	create client.CreateProductRequest
	steps  []step
}

var products = []seedProduct{
	{
		create: client.CreateProductRequest{ProductID: "PRD-MANGO1", ProductName: "Alphonso Mango", Location: "Ratnagiri, Maharashtra", PaymentMethod: "N/A"},
		steps: []step{
			{user: "wholesaler", transfer: &client.TransferRequest{Location: "Vashi APMC, Navi Mumbai", Status: "Picked-Up", PaymentMethod: "Bank Transfer"}},
			{user: "distributor", transfer: &client.TransferRequest{Location: "NH48 Cold Chain", Status: "In-Transit", PaymentMethod: "Bank Transfer", Notes: "reefer at 12C"}},
			{user: "retailer", transfer: &client.TransferRequest{Location: "FreshMart, Pune", Status: "Delivered-To-Retailer", PaymentMethod: "UPI"}},
			{user: "customer", delivery: &client.DeliveryRequest{CustomerName: "Customer E", Phone: "9876543210", Email: "customer@example.com", Address: "Koregaon Park, Pune", Status: "Delivered", PaymentMethod: "UPI"}},
		},
	},
	{
		create: client.CreateProductRequest{ProductID: "PRD-RICE01", ProductName: "Basmati Rice", Location: "Karnal, Haryana"},
		steps: []step{
			{user: "wholesaler", transfer: &client.TransferRequest{Location: "Karnal Grain Market", Status: "Picked-Up", PaymentMethod: "Cheque"}},
			{user: "distributor", transfer: &client.TransferRequest{Location: "Delhi Hub", Status: "Received-At-Hub", PaymentMethod: "Bank Transfer"}},
		},
	},
	{
		create: client.CreateProductRequest{ProductID: "PRD-TURM01", ProductName: "Turmeric", Location: "Erode, Tamil Nadu"},
		steps: []step{
			{user: "wholesaler", transfer: &client.TransferRequest{Location: "Erode Market Yard", Status: "In-Transit", PaymentMethod: "UPI"}},
			{user: "retailer", transfer: &client.TransferRequest{Location: "Spice Store, Chennai", Status: "Delivered-To-Retailer", PaymentMethod: "UPI"}},
			{user: "customer", delivery: &client.DeliveryRequest{CustomerName: "Customer E", Phone: "9876543210", Email: "customer@example.com", Address: "T. Nagar, Chennai", Status: "Returned", PaymentMethod: "Card"}},
		},
	},
}

func run(ctx context.Context, server string, out io.Writer) error {
	sessions := map[string]*client.Client{}
	session := func(username string) (*client.Client, error) {
		if c, ok := sessions[username]; ok {
			return c, nil
		}
		u, ok := identity.DefaultUsers()[username]
		if !ok {
			return nil, fmt.Errorf("no demo user %q", username)
		}
		c, err := client.New(server)
		if err != nil {
			return nil, err
		}
		if _, err := c.Login(ctx, username, u.Password); err != nil {
			return nil, fmt.Errorf("sign in as %s: %w", username, err)
		}
		sessions[username] = c
		return c, nil
	}

	anon, err := client.New(server)
	if err != nil {
		return err
	}
	ov, err := anon.Overview(ctx)
	if err != nil {
		return fmt.Errorf("reach %s: %w", server, err)
	}
	fmt.Fprintf(out, "connected to %s (%d records)\n", server, ov.Entries)

	seeded := 0
	for _, p := range products {
		id := p.create.ProductID
		_, err := anon.Summary(ctx, id)
		if err == nil {
			fmt.Fprintf(out, "  skip  %s (already on the ledger)\n", id)
			continue
		}
		if !errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("check %s: %w", id, err)
		}

		farmer, err := session("farmer")
		if err != nil {
			return err
		}
		if _, err := farmer.CreateProduct(ctx, p.create); err != nil {
			return fmt.Errorf("create %s: %w", id, err)
		}
		for _, s := range p.steps {
			c, err := session(s.user)
			if err != nil {
				return err
			}
			switch {
			case s.transfer != nil:
				_, err = c.RecordTransfer(ctx, id, *s.transfer)
			case s.delivery != nil:
				_, err = c.ConfirmDelivery(ctx, id, *s.delivery)
			}
			if err != nil {
				return fmt.Errorf("%s step by %s: %w", id, s.user, err)
			}
		}
		fmt.Fprintf(out, "  seed  %-12s %d records\n", id, len(p.steps)+1)
		seeded++
	}

	report, err := anon.Verify(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if !report.Valid {
		return fmt.Errorf("ledger failed verification after seeding: %s", report.Violation.Detail)
	}
	fmt.Fprintf(out, "\nseeded %d product(s); chain valid with %d records\n", seeded, report.Checked)
	return nil
}
