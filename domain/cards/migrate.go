package cards

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Store is a card repository.
type Store interface {
	// Existing returns every stored card.
	Existing(ctx context.Context) ([]Card, error)
	// Insert adds cards in a single transaction.
	Insert(ctx context.Context, cards []Card) error
	Close() error
}

// Report summarizes a migration run.
type Report struct {
	Added   int
	Skipped int
}

// Migrate inserts the cards not already present in store. Stored props are
// re-canonicalized before comparison; cards repeated within the input are
// inserted once.
func Migrate(ctx context.Context, store Store, cards []Card, logger *zap.Logger) (Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("cards")
	existing, err := store.Existing(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("cards: read existing: %w", err)
	}
	seen := make(map[Key]struct{}, len(existing)+len(cards))
	for _, c := range existing {
		if props, err := CanonicalProps([]byte(c.Props)); err == nil {
			c.Props = props
		}
		seen[c.Key()] = struct{}{}
	}

	var rep Report
	var fresh []Card
	for _, c := range cards {
		if _, dup := seen[c.Key()]; dup {
			log.Info("skipping duplicate card", zap.String("title", c.Title), zap.String("import_path", c.ImportPath))
			rep.Skipped++
			continue
		}
		seen[c.Key()] = struct{}{}
		fresh = append(fresh, c)
		log.Info("adding card", zap.String("title", c.Title), zap.String("import_path", c.ImportPath))
	}
	if len(fresh) > 0 {
		if err := store.Insert(ctx, fresh); err != nil {
			return Report{Skipped: rep.Skipped}, fmt.Errorf("cards: insert: %w", err)
		}
	}
	rep.Added = len(fresh)
	log.Info("migration completed", zap.Int("added", rep.Added), zap.Int("skipped", rep.Skipped))
	return rep, nil
}
