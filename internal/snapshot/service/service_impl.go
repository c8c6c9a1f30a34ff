package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/rangefront/armory/internal/catalog/domain"
	"github.com/rangefront/armory/internal/clock"
	"github.com/rangefront/armory/internal/config"
	"github.com/rangefront/armory/internal/snapshot/domain"
	"github.com/rangefront/armory/internal/snapshot/minting"
	pkgdb "github.com/rangefront/armory/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errLostInsertRace rolls the write transaction back after a duplicate-key
// insert so the committed winner row can be read cleanly.
var errLostInsertRace = errors.New("snapshot insert lost race")

type Params struct {
	fx.In

	Cfg         config.Config
	Fulfillment *config.FulfillmentConfigHolder
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	CatalogRepo catalogdomain.Repository
}

type Service struct {
	cfg         config.Config
	fulfillment *config.FulfillmentConfigHolder
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	catalogRepo catalogdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		cfg:         p.Cfg,
		fulfillment: p.Fulfillment,
		db:          p.DB,
		log:         p.Log.Named("snapshot.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
	}
}

func (s *Service) WriteSnapshot(ctx context.Context, req domain.WriteSnapshotRequest) (domain.MintedOrderNumberSet, error) {
	if req.OrderID == 0 {
		return domain.MintedOrderNumberSet{}, domain.ErrInvalidID
	}
	if fields := validateItems(req.Items); len(fields) > 0 {
		return domain.MintedOrderNumberSet{}, &domain.InvalidItemsError{Fields: fields}
	}
	if len(req.ShippingOutcomes) == 0 {
		return domain.MintedOrderNumberSet{}, &domain.InvalidItemsError{Fields: []string{"shippingOutcomes"}}
	}
	for i, token := range req.ShippingOutcomes {
		if !domain.KnownOutcome(token) {
			return domain.MintedOrderNumberSet{}, &domain.InvalidItemsError{
				Fields: []string{fmt.Sprintf("shippingOutcomes[%d]", i)},
			}
		}
	}

	customerJSON, err := json.Marshal(req.Customer)
	if err != nil {
		return domain.MintedOrderNumberSet{}, err
	}
	itemsJSON, err := json.Marshal(req.Items)
	if err != nil {
		return domain.MintedOrderNumberSet{}, err
	}
	outcomesJSON, err := json.Marshal(req.ShippingOutcomes)
	if err != nil {
		return domain.MintedOrderNumberSet{}, err
	}

	var minted domain.MintedOrderNumberSet
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByOrderIDForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}

		now := s.clock.Now()

		if existing != nil {
			minted, err = decodeMinted(existing.Minted)
			if err != nil {
				return err
			}
			if minted.IsZero() {
				minted, err = s.mint(ctx, tx, req.ShippingOutcomes)
				if err != nil {
					return err
				}
				mintedJSON, err := json.Marshal(minted)
				if err != nil {
					return err
				}
				if err := s.repo.SetMinted(ctx, tx, req.OrderID, mintedJSON, now); err != nil {
					return err
				}
			}
			// Minted is immutable; everything else tracks the latest write.
			return s.repo.UpdateMutable(ctx, tx, req.OrderID, customerJSON, itemsJSON, outcomesJSON, req.Status, req.TransactionID, now)
		}

		minted, err = s.mint(ctx, tx, req.ShippingOutcomes)
		if err != nil {
			return err
		}
		mintedJSON, err := json.Marshal(minted)
		if err != nil {
			return err
		}

		err = s.repo.Insert(ctx, tx, &domain.OrderSnapshot{
			ID:               s.genID.Generate(),
			OrderID:          req.OrderID,
			Customer:         customerJSON,
			Items:            itemsJSON,
			ShippingOutcomes: outcomesJSON,
			Minted:           mintedJSON,
			Status:           req.Status,
			TransactionID:    req.TransactionID,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		if pkgdb.IsDuplicateKeyErr(err) {
			return errLostInsertRace
		}
		return err
	})
	if errors.Is(err, errLostInsertRace) {
		// Lost the insert race: the whole write rolled back, including the
		// sequence advance, and the first writer's mint wins.
		winner, err := s.repo.FindByOrderID(ctx, s.db, req.OrderID)
		if err != nil {
			return domain.MintedOrderNumberSet{}, err
		}
		if winner == nil {
			return domain.MintedOrderNumberSet{}, fmt.Errorf("snapshot insert conflicted but row not found for order %d", req.OrderID)
		}
		return decodeMinted(winner.Minted)
	}
	if err != nil {
		return domain.MintedOrderNumberSet{}, err
	}
	return minted, nil
}

func (s *Service) ReadSummary(ctx context.Context, orderID snowflake.ID) (domain.SummaryView, error) {
	if orderID == 0 {
		return domain.SummaryView{}, domain.ErrInvalidID
	}

	snap, err := s.repo.FindByOrderID(ctx, s.db, orderID)
	if err != nil {
		return domain.SummaryView{}, err
	}
	if snap == nil {
		return domain.SummaryView{}, domain.ErrNotFound
	}

	var customer domain.Customer
	if err := json.Unmarshal(snap.Customer, &customer); err != nil {
		return domain.SummaryView{}, err
	}
	var items []domain.SnapshotItem
	if err := json.Unmarshal(snap.Items, &items); err != nil {
		return domain.SummaryView{}, err
	}
	var outcomes []string
	if err := json.Unmarshal(snap.ShippingOutcomes, &outcomes); err != nil {
		return domain.SummaryView{}, err
	}
	minted, err := decodeMinted(snap.Minted)
	if err != nil {
		return domain.SummaryView{}, err
	}

	if minted.IsZero() {
		minted, err = s.mintMissing(ctx, orderID, outcomes)
		if err != nil {
			return domain.SummaryView{}, err
		}
	}

	items, err = s.enrich(ctx, orderID, items)
	if err != nil {
		return domain.SummaryView{}, err
	}

	if fields := validateSummaryItems(items); len(fields) > 0 {
		return domain.SummaryView{}, &domain.SummaryValidationError{Fields: fields}
	}

	shipments := make([]domain.Shipment, 0, len(minted.Parts))
	for _, part := range minted.Parts {
		shipments = append(shipments, domain.Shipment{
			Outcome:     part.Outcome,
			OrderNumber: part.OrderNumber,
			Items:       items,
		})
	}

	return domain.SummaryView{
		OrderID:       orderID.String(),
		OrderNumber:   minted.Main,
		Status:        snap.Status,
		TransactionID: snap.TransactionID,
		Customer:      customer,
		MultiShipment: len(minted.Parts) > 1,
		Shipments:     shipments,
		Totals:        computeTotals(items),
	}, nil
}

func (s *Service) MintedFor(ctx context.Context, orderID snowflake.ID) (domain.MintedOrderNumberSet, error) {
	snap, err := s.repo.FindByOrderID(ctx, s.db, orderID)
	if err != nil {
		return domain.MintedOrderNumberSet{}, err
	}
	if snap == nil {
		return domain.MintedOrderNumberSet{}, nil
	}
	return decodeMinted(snap.Minted)
}

// mintMissing back-fills a minted set for a snapshot written without one. The
// row lock re-check keeps two concurrent readers from both minting.
func (s *Service) mintMissing(ctx context.Context, orderID snowflake.ID, outcomes []string) (domain.MintedOrderNumberSet, error) {
	var minted domain.MintedOrderNumberSet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		snap, err := s.repo.FindByOrderIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if snap == nil {
			return domain.ErrNotFound
		}
		minted, err = decodeMinted(snap.Minted)
		if err != nil {
			return err
		}
		if !minted.IsZero() {
			return nil
		}
		minted, err = s.mint(ctx, tx, outcomes)
		if err != nil {
			return err
		}
		mintedJSON, err := json.Marshal(minted)
		if err != nil {
			return err
		}
		return s.repo.SetMinted(ctx, tx, orderID, mintedJSON, s.clock.Now())
	})
	if err != nil {
		return domain.MintedOrderNumberSet{}, err
	}
	s.log.Warn("minted order number set on read path", zap.Int64("order_id", int64(orderID)))
	return minted, nil
}

func (s *Service) mint(ctx context.Context, tx *gorm.DB, outcomes []string) (domain.MintedOrderNumberSet, error) {
	scope := domain.SequenceScopeLive
	if s.cfg.TestOrderMintingScope {
		scope = domain.SequenceScopeTest
	}
	seq, err := s.repo.NextSequence(ctx, tx, scope)
	if err != nil {
		return domain.MintedOrderNumberSet{}, err
	}

	fc := s.fulfillment.Current()
	return minting.Mint(seq, outcomes, minting.Options{
		Width:      fc.MintWidth,
		TestWidth:  fc.TestMintWidth,
		TestPrefix: fc.TestPrefix,
		Test:       s.cfg.TestOrderMintingScope,
	})
}

// enrich back-fills placeholder item fields from the catalog. Lookup failures
// never fail the read; an item that cannot be resolved stays as stored and is
// caught by re-validation instead.
func (s *Service) enrich(ctx context.Context, orderID snowflake.ID, items []domain.SnapshotItem) ([]domain.SnapshotItem, error) {
	fc := s.fulfillment.Current()
	changed := false

	for i := range items {
		item := &items[i]
		if !isPlaceholder(item.UPC) && !isPlaceholder(item.MPN) && !isPlaceholder(item.Name) && !isPlaceholder(item.ImageURL) {
			continue
		}

		product, err := s.lookupProduct(ctx, fc.CatalogTimeout, item)
		if err != nil {
			s.log.Warn("catalog lookup failed during enrichment",
				zap.Int64("order_id", int64(orderID)),
				zap.String("sku", item.SKU),
				zap.Error(err),
			)
			continue
		}
		if product == nil {
			continue
		}

		if isPlaceholder(item.UPC) && product.UPC != "" {
			item.UPC = product.UPC
			changed = true
		}
		if isPlaceholder(item.MPN) && product.MPN != "" {
			item.MPN = product.MPN
			changed = true
		}
		if isPlaceholder(item.Name) && product.Name != "" {
			item.Name = product.Name
			changed = true
		}
		if isPlaceholder(item.ImageURL) && product.ImageURL != "" {
			item.ImageURL = product.ImageURL
			changed = true
		}
	}

	if changed {
		itemsJSON, err := json.Marshal(items)
		if err != nil {
			return nil, err
		}
		if err := s.repo.SetItemsEnriched(ctx, s.db, orderID, itemsJSON, s.clock.Now()); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (s *Service) lookupProduct(ctx context.Context, timeout time.Duration, item *domain.SnapshotItem) (*catalogdomain.Product, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !isPlaceholder(item.UPC) {
		product, err := s.catalogRepo.GetByUPC(lookupCtx, s.db, item.UPC)
		if err != nil || product != nil {
			return product, err
		}
	}
	if !isPlaceholder(item.MPN) {
		product, err := s.catalogRepo.GetByMPNOrSKU(lookupCtx, s.db, item.MPN)
		if err != nil || product != nil {
			return product, err
		}
	}
	if !isPlaceholder(item.SKU) {
		return s.catalogRepo.GetByMPNOrSKU(lookupCtx, s.db, item.SKU)
	}
	return nil, nil
}

func decodeMinted(raw datatypes.JSON) (domain.MintedOrderNumberSet, error) {
	var minted domain.MintedOrderNumberSet
	if len(raw) == 0 {
		return minted, nil
	}
	if err := json.Unmarshal(raw, &minted); err != nil {
		return domain.MintedOrderNumberSet{}, err
	}
	return minted, nil
}

// validateItems enforces the canonical write shape: every field present and
// plausible. Paths mirror the request payload, e.g. items[0].upc.
func validateItems(items []domain.SnapshotItem) []string {
	if len(items) == 0 {
		return []string{"items"}
	}
	var fields []string
	for i, item := range items {
		if strings.TrimSpace(item.SKU) == "" {
			fields = append(fields, fmt.Sprintf("items[%d].sku", i))
		}
		if strings.TrimSpace(item.UPC) == "" {
			fields = append(fields, fmt.Sprintf("items[%d].upc", i))
		}
		if strings.TrimSpace(item.MPN) == "" {
			fields = append(fields, fmt.Sprintf("items[%d].mpn", i))
		}
		if strings.TrimSpace(item.Name) == "" {
			fields = append(fields, fmt.Sprintf("items[%d].name", i))
		}
		if item.Qty <= 0 {
			fields = append(fields, fmt.Sprintf("items[%d].qty", i))
		}
		if item.UnitPrice < 0 {
			fields = append(fields, fmt.Sprintf("items[%d].price", i))
		}
		if strings.TrimSpace(item.ImageURL) == "" {
			fields = append(fields, fmt.Sprintf("items[%d].imageUrl", i))
		}
	}
	return fields
}

// validateSummaryItems is the post-enrichment gate: placeholders that survived
// enrichment make the summary unrenderable.
func validateSummaryItems(items []domain.SnapshotItem) []string {
	var fields []string
	for i, item := range items {
		if isPlaceholder(item.UPC) {
			fields = append(fields, fmt.Sprintf("items[%d].upc", i))
		}
		if isPlaceholder(item.MPN) {
			fields = append(fields, fmt.Sprintf("items[%d].mpn", i))
		}
		if isPlaceholder(item.Name) {
			fields = append(fields, fmt.Sprintf("items[%d].name", i))
		}
		if item.Qty <= 0 {
			fields = append(fields, fmt.Sprintf("items[%d].qty", i))
		}
		if item.UnitPrice < 0 {
			fields = append(fields, fmt.Sprintf("items[%d].price", i))
		}
		if isPlaceholder(item.ImageURL) || !validImagePath(item.ImageURL) {
			fields = append(fields, fmt.Sprintf("items[%d].imageUrl", i))
		}
	}
	return fields
}

// isPlaceholder reports whether a stored value is an unresolved stand-in
// rather than real catalog data.
func isPlaceholder(value string) bool {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" || v == "N/A" || v == "TBD" {
		return true
	}
	return strings.HasPrefix(v, "UNKNOWN") || strings.HasPrefix(v, "PENDING")
}

func validImagePath(url string) bool {
	return strings.HasPrefix(url, "http://") ||
		strings.HasPrefix(url, "https://") ||
		strings.HasPrefix(url, "/")
}

func computeTotals(items []domain.SnapshotItem) domain.Totals {
	// Each line is rounded before summing so the total does not depend on
	// item order.
	var subtotal float64
	for _, item := range items {
		subtotal += round2(float64(item.Qty) * item.UnitPrice)
	}
	subtotal = round2(subtotal)
	return domain.Totals{
		Subtotal:   subtotal,
		Tax:        0,
		Shipping:   0,
		GrandTotal: subtotal,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
