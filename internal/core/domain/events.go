package domain

import (
	"fmt"

	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
)

// EventType identifies one member of the closed event taxonomy.
type EventType string

// User-facing events, delivered to the owner's user channel.
const (
	EventOrderAdd           EventType = "ORDER_ADD"
	EventOrderUpdate        EventType = "ORDER_UPDATE"
	EventOrderCancel        EventType = "ORDER_CANCEL"
	EventDepositRecharge    EventType = "DEPOSIT_RECHARGE"
	EventDepositRefund      EventType = "DEPOSIT_REFUND"
	EventDepositFailed      EventType = "DEPOSIT_FAILED"
	EventTransactionAdd     EventType = "TRANSACTION_ADD"
	EventUserTokenUpdate    EventType = "USER_TOKEN_UPDATE"
	EventUserSettingsUpdate EventType = "USER_SETTINGS_UPDATE"
	EventUserTestPush       EventType = "USER_TEST_PUSH"
)

// Staff-facing events.
const (
	EventPOSAdd              EventType = "POS_ADD"
	EventPOSUpdate           EventType = "POS_UPDATE"
	EventPOSCancel           EventType = "POS_CANCEL"
	EventDepositStatusUpdate EventType = "DEPOSIT_STATUS_UPDATE"
)

// Admin-facing events.
const (
	EventUserAuthorityUpdate   EventType = "USER_AUTHORITY_UPDATE"
	EventBonusAdd              EventType = "BONUS_ADD"
	EventBonusUpdate           EventType = "BONUS_UPDATE"
	EventBonusDelete           EventType = "BONUS_DELETE"
	EventSupplierAdd           EventType = "SUPPLIER_ADD"
	EventSupplierUpdate        EventType = "SUPPLIER_UPDATE"
	EventSupplierDelete        EventType = "SUPPLIER_DELETE"
	EventConnectionCountUpdate EventType = "CONNECTION_COUNT_UPDATE"
)

// Public catalog events.
const (
	EventMenuAdd         EventType = "MENU_ADD"
	EventMenuUpdate      EventType = "MENU_UPDATE"
	EventMenuDelete      EventType = "MENU_DELETE"
	EventCategoryAdd     EventType = "CATEGORY_ADD"
	EventCategoryUpdate  EventType = "CATEGORY_UPDATE"
	EventCategoryDelete  EventType = "CATEGORY_DELETE"
	EventCommodityAdd    EventType = "COMMODITY_ADD"
	EventCommodityUpdate EventType = "COMMODITY_UPDATE"
	EventCommodityDelete EventType = "COMMODITY_DELETE"
	EventOptionSetAdd    EventType = "OPTION_SET_ADD"
	EventOptionSetUpdate EventType = "OPTION_SET_UPDATE"
	EventOptionSetDelete EventType = "OPTION_SET_DELETE"
	EventInventoryUpdate EventType = "INVENTORY_UPDATE"
)

// EventTypes lists every declared event type in declaration order.
var EventTypes = []EventType{
	EventOrderAdd,
	EventOrderUpdate,
	EventOrderCancel,
	EventDepositRecharge,
	EventDepositRefund,
	EventDepositFailed,
	EventTransactionAdd,
	EventUserTokenUpdate,
	EventUserSettingsUpdate,
	EventUserTestPush,
	EventPOSAdd,
	EventPOSUpdate,
	EventPOSCancel,
	EventDepositStatusUpdate,
	EventUserAuthorityUpdate,
	EventBonusAdd,
	EventBonusUpdate,
	EventBonusDelete,
	EventSupplierAdd,
	EventSupplierUpdate,
	EventSupplierDelete,
	EventConnectionCountUpdate,
	EventMenuAdd,
	EventMenuUpdate,
	EventMenuDelete,
	EventCategoryAdd,
	EventCategoryUpdate,
	EventCategoryDelete,
	EventCommodityAdd,
	EventCommodityUpdate,
	EventCommodityDelete,
	EventOptionSetAdd,
	EventOptionSetUpdate,
	EventOptionSetDelete,
	EventInventoryUpdate,
}

// IsValid checks if the event type is declared in the taxonomy.
func (t EventType) IsValid() bool {
	_, ok := definitions[t]
	return ok
}

// ParseEventType converts a wire identifier into a declared EventType.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownEventType, s)
	}
	return t, nil
}

// NotificationKind is the visual severity of a user-facing notification.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
	NotificationInfo    NotificationKind = "info"
)

// IsValid checks if the notification kind is one of the known kinds.
func (k NotificationKind) IsValid() bool {
	switch k {
	case NotificationSuccess, NotificationError, NotificationInfo:
		return true
	default:
		return false
	}
}
