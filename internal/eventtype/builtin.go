package eventtype

// BuiltinRegistry builds the registry of all compiled-in event types. The set
// is closed at compile time; it is an explicit static table, not the result
// of any runtime type scanning. A duplicate entry here is a programming
// error, hence the panic.
func BuiltinRegistry() *Registry {
	r := NewRegistry()
	for _, d := range builtinDescriptors {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

var builtinDescriptors = []Descriptor{
	{
		Name: "activity.created.v1",
		Fields: []Field{
			{Name: "activityId", Kind: ID, Required: true},
			{Name: "name", Kind: String, Required: true},
			{Name: "status", Kind: Enum, Required: true, Enum: []string{"planned", "active", "paused", "done"}},
			{Name: "plannedStart", Kind: Timestamp},
			{Name: "plannedEnd", Kind: Timestamp},
			{Name: "description", Kind: String},
		},
	},
	{
		Name: "activity.status-changed.v1",
		Fields: []Field{
			{Name: "activityId", Kind: ID, Required: true},
			{Name: "previousStatus", Kind: Enum, Required: true, Enum: []string{"planned", "active", "paused", "done"}},
			{Name: "newStatus", Kind: Enum, Required: true, Enum: []string{"planned", "active", "paused", "done"}},
			{Name: "changedAt", Kind: Timestamp},
		},
	},
	{
		Name: "material.delivered.v1",
		Fields: []Field{
			{Name: "materialId", Kind: ID, Required: true},
			{Name: "quantity", Kind: Number, Required: true, Min: 0, Max: 1e9, Bounded: true},
			{Name: "unit", Kind: Enum, Required: true, Enum: []string{"piece", "kg", "t", "m", "m2", "m3", "l"}},
			{Name: "deliveredAt", Kind: Timestamp},
			{Name: "supplier", Kind: String},
		},
	},
	{
		Name: "inspection.completed.v1",
		Fields: []Field{
			{Name: "inspectionId", Kind: ID, Required: true},
			{Name: "result", Kind: Enum, Required: true, Enum: []string{"passed", "failed", "conditional"}},
			{Name: "score", Kind: Number, Min: 0, Max: 100, Bounded: true},
			{Name: "inspector", Kind: String},
			{Name: "notes", Kind: String},
		},
	},
	{
		Name: "document.uploaded.v1",
		Fields: []Field{
			{Name: "documentId", Kind: ID, Required: true},
			{Name: "fileName", Kind: String, Required: true},
			{Name: "contentType", Kind: String},
			{Name: "sizeBytes", Kind: Number, Min: 0, Max: 1e12, Bounded: true},
			{Name: "metadata", Kind: Raw},
		},
	},
	{
		Name: "workorder.assigned.v1",
		Fields: []Field{
			{Name: "workOrderId", Kind: ID, Required: true},
			{Name: "assigneeId", Kind: ID, Required: true},
			{Name: "priority", Kind: Enum, Enum: []string{"low", "normal", "high", "urgent"}},
			{Name: "dueDate", Kind: Timestamp},
		},
	},
}
