package items

import (
	"encoding/json"
	"fmt"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/server/models"
)

// marshalDocs encodes the item's document-valued fields for storage.
func marshalDocs(i *models.Item) (traitsDoc, scarcityDoc, historyDoc, uniqueDoc []byte, err error) {
	if traitsDoc, err = json.Marshal(i.Traits); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode traits: %w", err)
	}
	if scarcityDoc, err = json.Marshal(i.Scarcity); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode scarcity: %w", err)
	}
	if historyDoc, err = json.Marshal(i.History); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode history: %w", err)
	}
	if uniqueDoc, err = json.Marshal(i.Unique); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode uniqueness: %w", err)
	}
	return traitsDoc, scarcityDoc, historyDoc, uniqueDoc, nil
}

// unmarshalDocs decodes the stored documents back onto the item. Corrupt
// columns surface as common.ErrSerialization so callers can tell a broken
// row from a missing one.
func unmarshalDocs(i *models.Item, traitsDoc, scarcityDoc, historyDoc, uniqueDoc []byte) error {
	if err := json.Unmarshal(traitsDoc, &i.Traits); err != nil {
		return fmt.Errorf("%w: decode traits: %v", common.ErrSerialization, err)
	}
	if err := json.Unmarshal(scarcityDoc, &i.Scarcity); err != nil {
		return fmt.Errorf("%w: decode scarcity: %v", common.ErrSerialization, err)
	}
	if err := json.Unmarshal(historyDoc, &i.History); err != nil {
		return fmt.Errorf("%w: decode history: %v", common.ErrSerialization, err)
	}
	if err := json.Unmarshal(uniqueDoc, &i.Unique); err != nil {
		return fmt.Errorf("%w: decode uniqueness: %v", common.ErrSerialization, err)
	}
	return nil
}
