package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	cartModels "homechef/internal/cart/models"
	id "homechef/pkg/domain"
)

// orderNamespace scopes name-based order ids.
var orderNamespace = uuid.MustParse("3b0c5d52-7a43-4f8e-9a61-2c4d8e7f1a90")

// IdempotencyKey fingerprints a checkout: the same user checking out the same
// cart contents always yields the same key.
func IdempotencyKey(userID id.UserID, items []cartModels.CartItem) string {
	sorted := make([]cartModels.CartItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].ID < sorted[b].ID })

	h := sha256.New()
	fmt.Fprintf(h, "%s\x1e", userID)
	for _, item := range sorted {
		fmt.Fprintf(h, "%s\x1f%d\x1f%s\x1f%s\x1e",
			item.ID,
			item.Quantity,
			item.Price.String(),
			item.AddedAt.UTC().Format(time.RFC3339Nano),
		)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// OrderIDFor derives the order id for one item of a checkout (uuid v5).
func OrderIDFor(key string, itemID id.ItemID) id.OrderID {
	return id.OrderID(uuid.NewSHA1(orderNamespace, []byte(key+"/"+itemID.String())).String())
}
