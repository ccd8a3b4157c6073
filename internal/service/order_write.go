package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/repairhub/api/internal/database"
	"github.com/repairhub/api/internal/enum"
)

// Update applies a partial update under a row lock on the order. Items are
// merged by id: listed items are updated, items without an id are created
// and stored items missing from the list are deleted. The total is always
// recomputed before commit.
func (s *OrderService) Update(ctx context.Context, caller Caller, id uuid.UUID, req UpdateOrderRequest) (*OrderDetail, error) {
	MaskUpdate(caller, &req)

	newStatus := ""
	if req.Status != nil {
		st, err := ParseStatus(*req.Status)
		if err != nil {
			return nil, err
		}
		newStatus = st
	}
	if req.Items != nil {
		if err := s.validateItemList(*req.Items); err != nil {
			return nil, err
		}
	}

	var statusChanged bool
	w := &writeTx{svc: s}
	detail, err := w.run(ctx, func(store OrderStore) (uuid.UUID, error) {
		order, err := store.GetOrderForUpdate(ctx, id)
		if err != nil {
			return uuid.Nil, mapStoreErr("lock order", err, ErrOrderNotFound)
		}
		if err := Authorize(caller, OpUpdate, order.OwnerID); err != nil {
			return uuid.Nil, err
		}
		if IsTerminal(string(order.Status)) {
			return uuid.Nil, ErrOrderTerminal
		}

		if newStatus != "" {
			if err := ValidateTransition(string(order.Status), newStatus); err != nil {
				return uuid.Nil, err
			}
			if newStatus != string(order.Status) {
				if _, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
					ID:     order.ID,
					Status: database.OrderStatus(newStatus),
				}); err != nil {
					return uuid.Nil, mapStoreErr("update status", err, ErrOrderNotFound)
				}
				statusChanged = true
			}
		}

		if err := w.mergeItems(ctx, store, order.ID, req.Items, req.Images); err != nil {
			return uuid.Nil, err
		}
		if err := reprice(ctx, store, order.ID); err != nil {
			return uuid.Nil, err
		}
		return order.ID, nil
	})
	if err != nil {
		return nil, err
	}

	if statusChanged {
		s.publish(ctx, enum.EventOrderStatusChanged, detail)
	} else {
		s.publish(ctx, enum.EventOrderUpdated, detail)
	}
	return detail, nil
}

// Cancel moves a non-terminal order to CANCELLED. Cancelling a closed order
// fails with ErrOrderTerminal and changes nothing.
func (s *OrderService) Cancel(ctx context.Context, caller Caller, id uuid.UUID) (*OrderDetail, error) {
	w := &writeTx{svc: s}
	detail, err := w.run(ctx, func(store OrderStore) (uuid.UUID, error) {
		order, err := store.GetOrderForUpdate(ctx, id)
		if err != nil {
			return uuid.Nil, mapStoreErr("lock order", err, ErrOrderNotFound)
		}
		if err := Authorize(caller, OpCancel, order.OwnerID); err != nil {
			return uuid.Nil, err
		}
		if err := ValidateTransition(string(order.Status), enum.OrderStatusCancelled); err != nil {
			return uuid.Nil, err
		}
		if _, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
			ID:     order.ID,
			Status: database.OrderStatusCANCELLED,
		}); err != nil {
			return uuid.Nil, mapStoreErr("cancel order", err, ErrOrderNotFound)
		}
		return order.ID, nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, enum.EventOrderStatusChanged, detail)
	return detail, nil
}

// Delete removes a non-terminal order with its items and images.
func (s *OrderService) Delete(ctx context.Context, caller Caller, id uuid.UUID) error {
	var deleted database.Order
	w := &writeTx{svc: s}
	_, err := w.run(ctx, func(store OrderStore) (uuid.UUID, error) {
		order, err := store.GetOrderForUpdate(ctx, id)
		if err != nil {
			return uuid.Nil, mapStoreErr("lock order", err, ErrOrderNotFound)
		}
		if err := Authorize(caller, OpDelete, order.OwnerID); err != nil {
			return uuid.Nil, err
		}
		if IsTerminal(string(order.Status)) {
			return uuid.Nil, ErrDeleteTerminal
		}

		images, err := store.ListOrderItemImagesByOrders(ctx, []uuid.UUID{order.ID})
		if err != nil {
			return uuid.Nil, fmt.Errorf("list item images: %w", err)
		}
		for _, img := range images {
			w.removed = append(w.removed, img.StorageKey)
		}
		if err := store.DeleteOrder(ctx, order.ID); err != nil {
			return uuid.Nil, fmt.Errorf("delete order: %w", err)
		}
		deleted = order
		return uuid.Nil, nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, enum.EventOrderDeleted, &OrderDetail{Order: deleted})
	return nil
}

// validateItemList checks the shape of an update item list before any
// storage access. Ownership of listed ids is checked inside the transaction.
func (s *OrderService) validateItemList(items []ItemInput) error {
	ids := make(map[uuid.UUID]bool, len(items))
	keys := make(map[string]bool, len(items))
	for i, in := range items {
		if in.ID != nil {
			if ids[*in.ID] {
				return fmt.Errorf("item[%d]: %w", i, ErrDuplicateItemID)
			}
			ids[*in.ID] = true
		}
		if err := s.validateItem(in, in.ID == nil); err != nil {
			return fmt.Errorf("item[%d]: %w", i, err)
		}
		if in.ClientKey != "" {
			if keys[in.ClientKey] {
				return fmt.Errorf("item[%d]: %w", i, ErrDuplicateClientKey)
			}
			keys[in.ClientKey] = true
		}
	}
	return nil
}

// mergeItems reconciles the stored items of orderID with the desired list
// and attaches uploads. A nil list only attaches uploads to stored items.
func (w *writeTx) mergeItems(ctx context.Context, store OrderStore, orderID uuid.UUID, desired *[]ItemInput, uploads []ImageUpload) error {
	if desired == nil && len(uploads) == 0 {
		return nil
	}

	stored, err := store.ListOrderItemsByOrders(ctx, []uuid.UUID{orderID})
	if err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	storedImages, err := store.ListOrderItemImagesByOrders(ctx, []uuid.UUID{orderID})
	if err != nil {
		return fmt.Errorf("list item images: %w", err)
	}
	byID := make(map[uuid.UUID]database.OrderItem, len(stored))
	for _, it := range stored {
		byID[it.ID] = it
	}
	imagesOf := make(map[uuid.UUID][]database.OrderItemImage)
	for _, img := range storedImages {
		imagesOf[img.OrderItemID] = append(imagesOf[img.OrderItemID], img)
	}

	// Item keys that uploads may address: ids of items that survive the
	// merge, plus client keys.
	targets := make(map[string]uuid.UUID)
	pending := make(map[string]int)

	if desired == nil {
		for _, it := range stored {
			targets[it.ID.String()] = it.ID
		}
	} else {
		keep := make(map[uuid.UUID]bool, len(*desired))
		for i, in := range *desired {
			if in.ID == nil {
				if in.ClientKey != "" {
					pending[in.ClientKey] = i
				}
				continue
			}
			if _, ok := byID[*in.ID]; !ok {
				return fmt.Errorf("item[%d]: %w", i, ErrUnknownItem)
			}
			keep[*in.ID] = true
			targets[in.ID.String()] = *in.ID
			if in.ClientKey != "" {
				targets[in.ClientKey] = *in.ID
			}
		}
		for key := range pending {
			if _, clash := targets[key]; clash {
				return fmt.Errorf("%w: %q", ErrDuplicateClientKey, key)
			}
		}

		for _, it := range stored {
			if keep[it.ID] {
				continue
			}
			for _, img := range imagesOf[it.ID] {
				w.removed = append(w.removed, img.StorageKey)
			}
			if err := store.DeleteOrderItem(ctx, database.DeleteOrderItemParams{ID: it.ID, OrderID: orderID}); err != nil {
				return fmt.Errorf("delete item %s: %w", it.ID, err)
			}
		}
	}

	grouped := make(map[string][]ImageUpload)
	for _, up := range uploads {
		_, isTarget := targets[up.ItemKey]
		_, isPending := pending[up.ItemKey]
		if !isTarget && !isPending {
			return fmt.Errorf("%w: %q", ErrUnmatchedImage, up.ItemKey)
		}
		grouped[up.ItemKey] = append(grouped[up.ItemKey], up)
	}

	if desired == nil {
		for key, ups := range grouped {
			itemID := targets[key]
			if err := w.attach(ctx, store, itemID, nextPosition(imagesOf[itemID]), ups); err != nil {
				return err
			}
		}
		return nil
	}

	for i, in := range *desired {
		pos := int32(i)
		if in.ID == nil {
			item, err := store.CreateOrderItem(ctx, newItemParams(orderID, in, pos))
			if err != nil {
				return mapStoreErr(fmt.Sprintf("item[%d]: create", i), err, nil)
			}
			if in.ClientKey != "" {
				if err := w.attach(ctx, store, item.ID, 0, grouped[in.ClientKey]); err != nil {
					return err
				}
			}
			continue
		}

		cur := byID[*in.ID]
		params := database.UpdateOrderItemParams{
			ID:            cur.ID,
			OrderID:       orderID,
			ApplianceKind: cur.ApplianceKind,
			Details:       cur.Details,
			Quantity:      cur.Quantity,
			UnitPrice:     cur.UnitPrice,
			Position:      pos,
		}
		if in.ApplianceKind != nil {
			params.ApplianceKind = *in.ApplianceKind
		}
		if in.Details != nil {
			params.Details = strings.TrimSpace(*in.Details)
		}
		if in.Quantity != nil {
			params.Quantity = *in.Quantity
		}
		if in.UnitPrice != nil {
			params.UnitPrice = decimalToNumeric(*in.UnitPrice)
		}
		if _, err := store.UpdateOrderItem(ctx, params); err != nil {
			return mapStoreErr(fmt.Sprintf("item[%d]: update", i), err, ErrUnknownItem)
		}

		kept, err := w.diffImages(ctx, store, cur.ID, imagesOf[cur.ID], in.KeepImageIDs)
		if err != nil {
			return fmt.Errorf("item[%d]: %w", i, err)
		}
		ups := grouped[cur.ID.String()]
		if in.ClientKey != "" {
			ups = append(ups, grouped[in.ClientKey]...)
		}
		if err := w.attach(ctx, store, cur.ID, nextPosition(kept), ups); err != nil {
			return err
		}
	}
	return nil
}

// diffImages deletes the images of an item that are not in keepIDs and
// returns the survivors. nil keepIDs keeps everything.
func (w *writeTx) diffImages(ctx context.Context, store OrderStore, itemID uuid.UUID, current []database.OrderItemImage, keepIDs *[]uuid.UUID) ([]database.OrderItemImage, error) {
	if keepIDs == nil {
		return current, nil
	}
	keep := make(map[uuid.UUID]bool, len(*keepIDs))
	owned := make(map[uuid.UUID]bool, len(current))
	for _, img := range current {
		owned[img.ID] = true
	}
	for _, id := range *keepIDs {
		if !owned[id] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownImage, id)
		}
		keep[id] = true
	}

	var kept []database.OrderItemImage
	for _, img := range current {
		if keep[img.ID] {
			kept = append(kept, img)
			continue
		}
		if err := store.DeleteOrderItemImage(ctx, database.DeleteOrderItemImageParams{ID: img.ID, OrderItemID: itemID}); err != nil {
			return nil, fmt.Errorf("delete image %s: %w", img.ID, err)
		}
		w.removed = append(w.removed, img.StorageKey)
	}
	return kept, nil
}

func nextPosition(images []database.OrderItemImage) int32 {
	var next int32
	for _, img := range images {
		if img.Position >= next {
			next = img.Position + 1
		}
	}
	return next
}
