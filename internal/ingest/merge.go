package ingest

import (
	"encoding/json"
	"errors"

	"github.com/sakif/intake-tracker/internal/apperror"
	"github.com/sakif/intake-tracker/internal/model"
)

var errNullLedger = errors.New("ledger is null")

// DecodeLedger parses a stored blob. A blob that is not a JSON object of
// records yields apperror.ErrCorruptedLedger; the intake path treats that as
// "no existing data" and overwrites it.
func DecodeLedger(user, blob string) (model.Ledger, error) {
	var ledger model.Ledger
	if err := json.Unmarshal([]byte(blob), &ledger); err != nil {
		return nil, apperror.CorruptedLedger(user, err)
	}
	if ledger == nil {
		// "null" decodes without error but is not a ledger either.
		return nil, apperror.CorruptedLedger(user, errNullLedger)
	}
	return ledger, nil
}

// EncodeLedger serializes a ledger for storage.
func EncodeLedger(ledger model.Ledger) (string, error) {
	b, err := json.Marshal(ledger)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Merge combines the stored ledger with a freshly validated fragment.
//
// Rules:
//   - no existing ledger (nil): the fragment becomes the ledger;
//   - date-key not yet present: the fragment's record is inserted as is;
//   - date-key present: existing foods, then every incoming food whose
//     identity (name, amount, calories, protein, carbs, fat) matches no
//     existing food. Both sides keep their relative order.
//
// Summaries are NOT merged. Whatever summary ends up on a touched day is stale
// until Resummarize runs, which the caller must do before persisting.
//
// Merge never mutates its arguments.
func Merge(existing model.Ledger, incoming model.Fragment) model.Ledger {
	merged := make(model.Ledger, len(existing)+len(incoming))
	for k, rec := range existing {
		merged[k] = rec
	}

	for key, rec := range incoming {
		current, ok := merged[key]
		if !ok {
			merged[key] = model.DailyRecord{
				Foods:   append([]model.FoodItem(nil), rec.Foods...),
				Summary: rec.Summary,
			}
			continue
		}
		merged[key] = model.DailyRecord{
			Foods:   appendNew(current.Foods, rec.Foods),
			Summary: current.Summary,
		}
	}
	return merged
}

// appendNew returns existing followed by every food in incoming that is not
// already in existing. Only existing foods suppress; the incoming list is
// taken as the model produced it.
func appendNew(existing, incoming []model.FoodItem) []model.FoodItem {
	seen := make(map[model.Identity]struct{}, len(existing))
	for _, f := range existing {
		seen[f.Identity()] = struct{}{}
	}

	out := make([]model.FoodItem, 0, len(existing)+len(incoming))
	out = append(out, existing...)
	for _, f := range incoming {
		if _, dup := seen[f.Identity()]; dup {
			continue
		}
		out = append(out, f)
	}
	return out
}
