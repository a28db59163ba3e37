// Package client is the Go SDK for the supply chain ledger HTTP API.
//
// Reads are anonymous:
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	journey, err := c.Journey(ctx, "PRD-7F3A21")
//
// Writes need a session token. Login stores it on the client:
//
//	if _, err := c.Login(ctx, "farmer", "farmer123"); err != nil {
//	    log.Fatal(err)
//	}
//	rec, err := c.CreateProduct(ctx, client.CreateProductRequest{
//	    ProductName: "Mango",
//	    Location:    "Amritsar, Punjab",
//	})
//
// Summary and Entry return ErrNotFound for unknown products and sequence
// numbers.
package client
