package domain

import (
	"fmt"
	"slices"
	"strings"
)

// QueryKey names a client-side cached query that an event can make stale.
type QueryKey string

const (
	QueryMenu            QueryKey = "menu"
	QueryMenuList        QueryKey = "menu-list"
	QueryCategories      QueryKey = "categories"
	QueryCommodities     QueryKey = "commodities"
	QueryOptionSets      QueryKey = "option-sets"
	QueryCart            QueryKey = "cart"
	QueryUser            QueryKey = "user"
	QuerySettings        QueryKey = "settings"
	QueryOrders          QueryKey = "orders"
	QueryOrderCount      QueryKey = "order-count"
	QueryTransactions    QueryKey = "transactions"
	QueryDeposits        QueryKey = "deposits"
	QueryPOSLive         QueryKey = "pos-live"
	QueryPOSReservation  QueryKey = "pos-reservation"
	QueryAdminUsers      QueryKey = "admin-users"
	QueryBonuses         QueryKey = "bonuses"
	QuerySuppliers       QueryKey = "suppliers"
	QueryConnectionCount QueryKey = "connection-count"
)

// QueryKeys is the full key set invalidated by a reconnect sweep.
var QueryKeys = []QueryKey{
	QueryMenu,
	QueryMenuList,
	QueryCategories,
	QueryCommodities,
	QueryOptionSets,
	QueryCart,
	QueryUser,
	QuerySettings,
	QueryOrders,
	QueryOrderCount,
	QueryTransactions,
	QueryDeposits,
	QueryPOSLive,
	QueryPOSReservation,
	QueryAdminUsers,
	QueryBonuses,
	QuerySuppliers,
	QueryConnectionCount,
}

// Audience is the default visibility of an event type.
type Audience string

const (
	AudienceUser   Audience = "user"
	AudienceStaff  Audience = "staff"
	AudienceAdmin  Audience = "admin"
	AudiencePublic Audience = "public"
)

// LiveOrderLinkPrefix marks links that point at a live (non-reservation) POS order.
const LiveOrderLinkPrefix = "/pos/live"

// Definition holds the static, per-type behavior of an event.
type Definition struct {
	Type        EventType
	Audience    Audience
	Kind        NotificationKind
	SkipNotify  bool
	Title       string
	Invalidates []QueryKey
	Tag         string
	// AlsoOwner additionally targets the owner's user channel when one is given.
	AlsoOwner bool
	// Alert raises the audible alert for live order links.
	Alert bool
}

// ShouldAlert reports whether an envelope of this type with the given link raises the audible alert.
func (d Definition) ShouldAlert(link string) bool {
	return d.Alert && strings.HasPrefix(link, LiveOrderLinkPrefix)
}

var (
	orderKeys   = []QueryKey{QueryMenu, QueryCart, QueryUser, QueryOrders, QueryOrderCount, QueryTransactions}
	depositKeys = []QueryKey{QueryUser, QueryDeposits, QueryTransactions}
	posKeys     = []QueryKey{QueryPOSLive, QueryPOSReservation}
)

var definitions = map[EventType]Definition{
	EventOrderAdd:           {Audience: AudienceUser, Kind: NotificationSuccess, Title: "Order placed", Invalidates: orderKeys, Tag: "order", Alert: true},
	EventOrderUpdate:        {Audience: AudienceUser, Kind: NotificationInfo, Title: "Order updated", Invalidates: []QueryKey{QueryOrders, QueryOrderCount}, Tag: "order"},
	EventOrderCancel:        {Audience: AudienceUser, Kind: NotificationInfo, Title: "Order canceled", Invalidates: []QueryKey{QueryMenu, QueryOrders, QueryOrderCount, QueryUser, QueryTransactions}, Tag: "order"},
	EventDepositRecharge:    {Audience: AudienceUser, Kind: NotificationSuccess, Title: "Deposit received", Invalidates: depositKeys, Tag: "deposit"},
	EventDepositRefund:      {Audience: AudienceUser, Kind: NotificationInfo, Title: "Deposit refunded", Invalidates: depositKeys, Tag: "deposit"},
	EventDepositFailed:      {Audience: AudienceUser, Kind: NotificationError, Title: "Deposit failed", Invalidates: []QueryKey{QueryDeposits}, Tag: "deposit"},
	EventTransactionAdd:     {Audience: AudienceUser, Kind: NotificationInfo, SkipNotify: true, Title: "New transaction", Invalidates: []QueryKey{QueryTransactions, QueryUser}},
	EventUserTokenUpdate:    {Audience: AudienceUser, Kind: NotificationInfo, SkipNotify: true, Title: "Balance updated", Invalidates: []QueryKey{QueryUser}},
	EventUserSettingsUpdate: {Audience: AudienceUser, Kind: NotificationInfo, SkipNotify: true, Title: "Settings updated", Invalidates: []QueryKey{QuerySettings, QueryUser}},
	EventUserTestPush:       {Audience: AudienceUser, Kind: NotificationInfo, Title: "Test notification", Tag: "test-push"},

	EventPOSAdd:              {Audience: AudienceStaff, Kind: NotificationInfo, Title: "New order", Invalidates: posKeys, Tag: "pos-add", Alert: true},
	EventPOSUpdate:           {Audience: AudienceStaff, Kind: NotificationInfo, SkipNotify: true, Title: "Order updated", Invalidates: posKeys},
	EventPOSCancel:           {Audience: AudienceStaff, Kind: NotificationInfo, Title: "Order canceled", Invalidates: []QueryKey{QueryPOSLive, QueryPOSReservation, QueryMenu}, Tag: "pos-cancel"},
	EventDepositStatusUpdate: {Audience: AudienceStaff, Kind: NotificationInfo, SkipNotify: true, Title: "Deposit status updated", Invalidates: []QueryKey{QueryDeposits}},

	EventUserAuthorityUpdate:   {Audience: AudienceAdmin, Kind: NotificationInfo, Title: "Authority updated", Invalidates: []QueryKey{QueryUser, QueryAdminUsers}, Tag: "authority", AlsoOwner: true},
	EventBonusAdd:              {Audience: AudienceAdmin, Kind: NotificationInfo, SkipNotify: true, Title: "Bonus added", Invalidates: []QueryKey{QueryBonuses}},
	EventBonusUpdate:           {Audience: AudienceAdmin, Kind: NotificationInfo, SkipNotify: true, Title: "Bonus updated", Invalidates: []QueryKey{QueryBonuses}},
	EventBonusDelete:           {Audience: AudienceAdmin, Kind: NotificationInfo, SkipNotify: true, Title: "Bonus deleted", Invalidates: []QueryKey{QueryBonuses}},
	EventSupplierAdd:           {Audience: AudienceAdmin, Kind: NotificationInfo, SkipNotify: true, Title: "Supplier added", Invalidates: []QueryKey{QuerySuppliers}},
	EventSupplierUpdate:        {Audience: AudienceAdmin, Kind: NotificationInfo, SkipNotify: true, Title: "Supplier updated", Invalidates: []QueryKey{QuerySuppliers}},
	EventSupplierDelete:        {Audience: AudienceAdmin, Kind: NotificationInfo, SkipNotify: true, Title: "Supplier deleted", Invalidates: []QueryKey{QuerySuppliers}},
	EventConnectionCountUpdate: {Audience: AudienceAdmin, Kind: NotificationInfo, Title: "Online users", Invalidates: []QueryKey{QueryConnectionCount}, Tag: "connection-count"},

	EventMenuAdd:         {Audience: AudiencePublic, Kind: NotificationSuccess, SkipNotify: true, Title: "Menu added", Invalidates: []QueryKey{QueryMenu, QueryMenuList}},
	EventMenuUpdate:      {Audience: AudiencePublic, Kind: NotificationInfo, SkipNotify: true, Title: "Menu updated", Invalidates: []QueryKey{QueryMenu, QueryMenuList, QueryCart}},
	EventMenuDelete:      {Audience: AudiencePublic, Kind: NotificationInfo, SkipNotify: true, Title: "Menu deleted", Invalidates: []QueryKey{QueryMenu, QueryMenuList, QueryCart}},
	EventCategoryAdd:     {Audience: AudiencePublic, Kind: NotificationInfo, SkipNotify: true, Title: "Category added", Invalidates: []QueryKey{QueryCategories, QueryMenu}},
	EventCategoryUpdate:  {Audience: AudiencePublic, Kind: NotificationInfo, SkipNotify: true, Title: "Category updated", Invalidates: []QueryKey{QueryCategories, QueryMenu}},
	EventCategoryDelete:  {Audience: AudiencePublic, Kind: NotificationInfo, SkipNotify: true, Title: "Category deleted", Invalidates: []QueryKey{QueryCategories, QueryMenu}},
	EventCommodityAdd:    {Audience: AudiencePublic, Kind: NotificationInfo, SkipNotify: true, Title: "Commodity added", Invalidates: []QueryKey{QueryCommodities, QueryMenu}},
	EventCommodityUpdate: {Audience: AudiencePublic, Kind: NotificationInfo, SkipNotify: true, Title: "Commodity updated", Invalidates: []QueryKey{QueryCommodities, QueryMenu, QueryCart}},
	EventCommodityDelete: {Audience: AudiencePublic, Kind: NotificationInfo, SkipNotify: true, Title: "Commodity deleted", Invalidates: []QueryKey{QueryCommodities, QueryMenu, QueryCart}},
	EventOptionSetAdd:    {Audience: AudiencePublic, Kind: NotificationInfo, SkipNotify: true, Title: "Option set added", Invalidates: []QueryKey{QueryOptionSets, QueryCommodities}},
	EventOptionSetUpdate: {Audience: AudiencePublic, Kind: NotificationInfo, SkipNotify: true, Title: "Option set updated", Invalidates: []QueryKey{QueryOptionSets, QueryCommodities, QueryCart}},
	EventOptionSetDelete: {Audience: AudiencePublic, Kind: NotificationInfo, SkipNotify: true, Title: "Option set deleted", Invalidates: []QueryKey{QueryOptionSets, QueryCommodities, QueryCart}},
	EventInventoryUpdate: {Audience: AudiencePublic, Kind: NotificationInfo, SkipNotify: true, Title: "Inventory updated", Invalidates: []QueryKey{QueryMenu, QueryCart}},
}

func init() {
	if err := checkDefinitions(); err != nil {
		panic(err)
	}
	for t, def := range definitions {
		def.Type = t
		definitions[t] = def
	}
}

// checkDefinitions verifies the definition table covers exactly the declared taxonomy.
func checkDefinitions() error {
	if len(definitions) != len(EventTypes) {
		return fmt.Errorf("event definitions: %d declared types, %d definitions", len(EventTypes), len(definitions))
	}
	for _, t := range EventTypes {
		def, ok := definitions[t]
		if !ok {
			return fmt.Errorf("event definitions: %s has no definition", t)
		}
		if !def.Kind.IsValid() {
			return fmt.Errorf("event definitions: %s has invalid notification kind %q", t, def.Kind)
		}
		if def.Title == "" {
			return fmt.Errorf("event definitions: %s has no title", t)
		}
		for _, key := range def.Invalidates {
			if !slices.Contains(QueryKeys, key) {
				return fmt.Errorf("event definitions: %s invalidates undeclared query key %q", t, key)
			}
		}
	}
	return nil
}

// DefinitionOf returns the static definition for a declared event type.
func DefinitionOf(t EventType) (Definition, bool) {
	def, ok := definitions[t]
	def.Invalidates = slices.Clone(def.Invalidates)
	return def, ok
}
