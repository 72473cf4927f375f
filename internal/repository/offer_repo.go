package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/util"
	"google.golang.org/api/iterator"
)

const (
	offersCollection = "offers"
	firestoreBatch   = 400
)

// OfferRepository handles Firestore read/write for price offers.
type OfferRepository struct {
	client *firestore.Client
}

func NewOfferRepository(client *firestore.Client) *OfferRepository {
	return &OfferRepository{client: client}
}

// offerDocument is the Firestore shape of a PriceOffer. Decimals are stored as strings.
type offerDocument struct {
	ID              string    `firestore:"id"`
	MarketID        string    `firestore:"marketId"`
	MarketName      string    `firestore:"marketName"`
	Title           string    `firestore:"title"`
	URL             string    `firestore:"url"`
	ImageURL        string    `firestore:"imageUrl,omitempty"`
	Price           string    `firestore:"price"`
	QuantityValue   *float64  `firestore:"quantityValue"`
	QuantityUnit    string    `firestore:"quantityUnit,omitempty"`
	NormalizedPrice string    `firestore:"normalizedPrice,omitempty"`
	NormalizedUnit  string    `firestore:"normalizedUnit,omitempty"`
	PriceDisplay    string    `firestore:"priceDisplay"`
	Availability    string    `firestore:"availability"`
	Status          string    `firestore:"normalizationStatus"`
	Comparable      bool      `firestore:"isComparable"`
	SearchQuery     string    `firestore:"searchQuery"`
	CEP             string    `firestore:"cep,omitempty"`
	CollectedAt     time.Time `firestore:"collectedAt"`
	ParserVersion   string    `firestore:"parserVersion,omitempty"`
}

func toOfferDocument(o model.PriceOffer) offerDocument {
	doc := offerDocument{
		ID:            o.ID,
		MarketID:      o.MarketID,
		MarketName:    o.MarketName,
		Title:         o.Title,
		URL:           o.URL,
		ImageURL:      o.ImageURL,
		Price:         o.Price.String(),
		QuantityValue: o.QuantityValue,
		PriceDisplay:  o.PriceDisplay,
		Availability:  string(o.Availability),
		Status:        string(o.Status),
		Comparable:    o.IsComparable(),
		SearchQuery:   o.SearchQuery,
		CEP:           o.CEP,
		CollectedAt:   o.CollectedAt,
		ParserVersion: o.ParserVersion,
	}
	if o.QuantityUnit != nil {
		doc.QuantityUnit = string(*o.QuantityUnit)
	}
	if o.NormalizedPrice != nil {
		doc.NormalizedPrice = o.NormalizedPrice.String()
	}
	if o.NormalizedUnit != nil {
		doc.NormalizedUnit = string(*o.NormalizedUnit)
	}
	return doc
}

func (d offerDocument) toOffer() (model.PriceOffer, error) {
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return model.PriceOffer{}, fmt.Errorf("decode price %q: %w", d.Price, err)
	}
	o := model.PriceOffer{
		ID:            d.ID,
		MarketID:      d.MarketID,
		MarketName:    d.MarketName,
		Title:         d.Title,
		URL:           d.URL,
		ImageURL:      d.ImageURL,
		Price:         price,
		QuantityValue: d.QuantityValue,
		PriceDisplay:  d.PriceDisplay,
		Availability:  model.Availability(d.Availability),
		Status:        model.NormalizationStatus(d.Status),
		SearchQuery:   d.SearchQuery,
		CEP:           d.CEP,
		CollectedAt:   d.CollectedAt,
		ParserVersion: d.ParserVersion,
	}
	if d.QuantityUnit != "" {
		u := model.Unit(d.QuantityUnit)
		o.QuantityUnit = &u
	}
	if d.NormalizedPrice != "" {
		np, err := decimal.NewFromString(d.NormalizedPrice)
		if err != nil {
			return model.PriceOffer{}, fmt.Errorf("decode normalized price %q: %w", d.NormalizedPrice, err)
		}
		o.NormalizedPrice = &np
	}
	if d.NormalizedUnit != "" {
		u := model.Unit(d.NormalizedUnit)
		o.NormalizedUnit = &u
	}
	return o, nil
}

// SaveOffers writes offers in batches to reduce round trips. Offers of the same product
// at the same market overwrite each other.
func (r *OfferRepository) SaveOffers(ctx context.Context, offers []model.PriceOffer) error {
	if len(offers) == 0 {
		return nil
	}
	for start := 0; start < len(offers); start += firestoreBatch {
		end := start + firestoreBatch
		if end > len(offers) {
			end = len(offers)
		}
		batch := r.client.Batch()
		for _, o := range offers[start:end] {
			ref := r.client.Collection(offersCollection).Doc(offerDocumentID(o))
			batch.Set(ref, toOfferDocument(o))
		}
		if _, err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("commit batch [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

// ListOffers returns offers matching q. Equality filters run in Firestore.
func (r *OfferRepository) ListOffers(ctx context.Context, q model.OfferQuery) ([]model.PriceOffer, error) {
	query := r.client.Collection(offersCollection).Query
	if q.SearchQuery != "" {
		query = query.Where("searchQuery", "==", q.SearchQuery)
	}
	if q.MarketID != "" {
		query = query.Where("marketId", "==", q.MarketID)
	}
	if q.ComparableOnly {
		query = query.Where("isComparable", "==", true)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()
	var out []model.PriceOffer
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate offers: %w", err)
		}
		var doc offerDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode offer %s: %w", snap.Ref.ID, err)
		}
		o, err := doc.toOffer()
		if err != nil {
			return nil, fmt.Errorf("decode offer %s: %w", snap.Ref.ID, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// offerDocumentID keys offers by market, URL and title so a re-collected product replaces its
// previous offer.
func offerDocumentID(o model.PriceOffer) string {
	return util.HashOfferKey(o.MarketID, o.URL, o.Title)
}
