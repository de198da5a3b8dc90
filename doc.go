// Package licensor provides a multi-tenant license-key and credit engine for
// Go applications.
//
// Licensor is designed as a library, not a service. Owners create resellers
// (admins) and grant them balance; resellers spend balance to mint
// time-limited, device-capped license keys for products ("mods"). It
// provides:
//
//   - Duration-bucketed key pricing from per-account rate tables
//   - Race-free balance debits through conditional storage writes
//   - Owner-tier and reseller-tier keys in a single store
//   - One-time registration codes with exactly-once redemption
//   - Per-mod balance pools layered over the general balance
//   - Pluggable notification sinks (Redis, Kafka) and lifecycle plugins
//
// # Quick Start
//
// Create a licensor instance with your preferred store:
//
//	import (
//	    "github.com/xraph/licensor"
//	    "github.com/xraph/licensor/store/postgres"
//	)
//
//	l := licensor.New(postgres.New(db),
//	    licensor.WithLogger(logger),
//	    licensor.WithSink(redisnotify.New(client, "")),
//	)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// Key cost depends on the smallest duration tier covering the request
// (1, 3, 7, 15, 30 or 60 days) multiplied by the device count:
//
//	k, err := l.IssueKey(ctx, resellerID, licensor.IssueParams{
//	    ModID:      "mod-a",
//	    ExpiresAt:  time.Now().AddDate(0, 0, 7),
//	    MaxDevices: 2,
//	})
//
// Clients consume one use per validation:
//
//	details, err := l.ValidateAndConsume(ctx, token, "mod-a")
//
// One-time codes create a reseller with a starting balance:
//
//	code, err := l.CreateCode(ctx, ownerID, licensor.CodeParams{Balance: 500, Duration: "30 days"})
//	reseller, err := l.Redeem(ctx, code.Code, licensor.AccountParams{Username: "bob"})
//
// # Errors
//
// Every failure maps to a Kind (validation, not_found, forbidden, conflict,
// business_rule, internal) through KindOf. Message never exposes storage
// errors.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	lk_01h2xcejqtf2nbrexx3vqjhp41    // License key ID
//	code_01h455vb4pex5vsknk084sn02q  // One-time code ID
package licensor
