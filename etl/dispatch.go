package etl

// groupHandlerKey and guidHandlerKey are the registry lookup keys,
// mirroring dispatching_event_observer's group_handler_key/guid_handler_key:
// a record is dispatched to every handler registered for its
// (group,type,version) or (guid,type,version) triple.
type groupHandlerKey struct {
	group   TraceGroup
	etype   uint8
	version uint16
}

type guidHandlerKey struct {
	guid    GUID
	etype   uint16
	version uint16
}

// GroupHandler receives a group-keyed record: the file header context, the
// raw trace header it arrived under, and the record's payload span. It must
// not retain payload past the call.
type GroupHandler func(header HeaderData, trace TraceHeader, payload []byte) error

// GUIDHandler receives a guid-keyed record.
type GUIDHandler func(header HeaderData, trace TraceHeader, payload []byte) error

// Dispatcher routes parsed records to handlers registered for their
// (group,type,version) or (guid,type,version) identity, falling back to
// "unknown" handlers when none are registered for that key — the Go
// analogue of dispatching_event_observer's registration table, built as a
// map instead of compile-time template registration.
type Dispatcher struct {
	groupHandlers map[groupHandlerKey][]GroupHandler
	guidHandlers  map[guidHandlerKey][]GUIDHandler

	unknownGroup []GroupHandler
	unknownGUID  []GUIDHandler
}

// NewDispatcher creates an empty dispatch table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		groupHandlers: make(map[groupHandlerKey][]GroupHandler),
		guidHandlers:  make(map[guidHandlerKey][]GUIDHandler),
	}
}

// RegisterGroup registers handler for every (group,type) pair named by ids,
// all sharing the one version these ids were declared for.
func (d *Dispatcher) RegisterGroup(version uint16, ids []EventIdentifierGroup, handler GroupHandler) {
	for _, id := range ids {
		key := groupHandlerKey{group: id.Group, etype: id.Type, version: version}
		d.groupHandlers[key] = append(d.groupHandlers[key], handler)
	}
}

// RegisterGUID registers handler for every (guid,type) pair named by ids.
func (d *Dispatcher) RegisterGUID(version uint16, ids []EventIdentifierGUID, handler GUIDHandler) {
	for _, id := range ids {
		key := guidHandlerKey{guid: id.GUID, etype: id.Type, version: version}
		d.guidHandlers[key] = append(d.guidHandlers[key], handler)
	}
}

// RegisterUnknownGroup registers a catch-all invoked for group-keyed records
// with no handler registered for their exact key.
func (d *Dispatcher) RegisterUnknownGroup(handler GroupHandler) {
	d.unknownGroup = append(d.unknownGroup, handler)
}

// RegisterUnknownGUID registers a catch-all invoked for guid-keyed records
// with no handler registered for their exact key.
func (d *Dispatcher) RegisterUnknownGUID(handler GUIDHandler) {
	d.unknownGUID = append(d.unknownGUID, handler)
}

// Dispatch routes one parsed record to its registered handlers. Unknown
// record identifiers are silently skipped if no unknown handler is
// registered either, matching the "always additive" propagation policy:
// decoders never fail on an unrecognized but well-formed record.
func (d *Dispatcher) Dispatch(header HeaderData, trace TraceHeader) error {
	if trace.IsGroupKeyed() {
		key := groupHandlerKey{group: trace.Group, etype: trace.GroupType, version: trace.Version}
		handlers, ok := d.groupHandlers[key]
		if !ok {
			handlers = d.unknownGroup
		}
		for _, h := range handlers {
			if err := h(header, trace, trace.Payload); err != nil {
				return err
			}
		}
		return nil
	}

	key := guidHandlerKey{guid: trace.GUID, etype: trace.GUIDType, version: trace.Version}
	handlers, ok := d.guidHandlers[key]
	if !ok {
		handlers = d.unknownGUID
	}
	for _, h := range handlers {
		if err := h(header, trace, trace.Payload); err != nil {
			return err
		}
	}
	return nil
}
