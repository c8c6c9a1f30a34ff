package minting

import (
	"fmt"

	"github.com/rangefront/armory/internal/snapshot/domain"
)

// Receiver codes, appended to the base sequence per shipping-outcome bucket.
const (
	CodeWarehouse = "W" // ships to us first
	CodeFFL       = "F" // drop-ship to a licensed dealer
	CodeCustomer  = "C" // drop-ship straight to the customer
)

type Options struct {
	Width      int
	TestWidth  int
	TestPrefix string
	Test       bool
}

// bucketOrder fixes the processing order of outcome buckets so multiplicity
// suffixes are deterministic for a given outcome set.
var bucketOrder = []string{CodeWarehouse, CodeFFL, CodeCustomer}

// Mint derives the full order number set for one base sequence value. It is
// pure and deterministic: same sequence + same outcomes = same output.
//
// Single-bucket orders carry no multiplicity suffix; the letters A, B, C...
// appear only when the order splits across more than one bucket.
func Mint(seq int64, outcomes []string, opts Options) (domain.MintedOrderNumberSet, error) {
	if seq <= 0 {
		return domain.MintedOrderNumberSet{}, fmt.Errorf("invalid mint sequence: %d", seq)
	}

	buckets, err := Buckets(outcomes)
	if err != nil {
		return domain.MintedOrderNumberSet{}, err
	}
	if len(buckets) == 0 {
		return domain.MintedOrderNumberSet{}, fmt.Errorf("no shipping outcomes to mint against")
	}

	width := opts.Width
	prefix := ""
	if opts.Test {
		width = opts.TestWidth
		prefix = opts.TestPrefix
	}
	if width <= 0 {
		return domain.MintedOrderNumberSet{}, fmt.Errorf("invalid mint width: %d", width)
	}
	base := fmt.Sprintf("%s%0*d", prefix, width, seq)

	parts := make([]domain.MintedPart, 0, len(buckets))
	for i, code := range buckets {
		number := base + code
		if len(buckets) > 1 {
			number += string(rune('A' + i))
		}
		parts = append(parts, domain.MintedPart{
			Outcome:     outcomeForCode(code),
			OrderNumber: number,
		})
	}

	return domain.MintedOrderNumberSet{
		Main:  parts[0].OrderNumber,
		Parts: parts,
	}, nil
}

// Buckets collapses outcome tokens into the ordered set of receiver buckets.
// The mixed token classifies as one warehouse bucket plus one direct-to-
// customer bucket.
func Buckets(outcomes []string) ([]string, error) {
	present := map[string]bool{}
	for _, token := range outcomes {
		switch token {
		case domain.OutcomeInHouseToCustomer:
			present[CodeWarehouse] = true
		case domain.OutcomeDropShipToFFL:
			present[CodeFFL] = true
		case domain.OutcomeDropShipToCustomer:
			present[CodeCustomer] = true
		case domain.OutcomeMixed:
			present[CodeWarehouse] = true
			present[CodeCustomer] = true
		default:
			return nil, fmt.Errorf("unknown shipping outcome: %q", token)
		}
	}

	ordered := make([]string, 0, len(present))
	for _, code := range bucketOrder {
		if present[code] {
			ordered = append(ordered, code)
		}
	}
	return ordered, nil
}

func outcomeForCode(code string) string {
	switch code {
	case CodeWarehouse:
		return domain.OutcomeInHouseToCustomer
	case CodeFFL:
		return domain.OutcomeDropShipToFFL
	default:
		return domain.OutcomeDropShipToCustomer
	}
}
