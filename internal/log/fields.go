package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"

	FieldEmployeeID  = "employee_id"
	FieldCollection  = "collection"
	FieldToken       = "token"
	FieldMonth       = "month"
	FieldDirection   = "direction"
	FieldCategory    = "category"
	FieldType        = "type"
	FieldAmountCents = "amount_cents"
	FieldState       = "state"
	FieldBackend     = "backend"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentGateway = "gateway"
	ComponentDialog  = "dialog"
	ComponentSession = "session"
	ComponentCatalog = "catalog"
	ComponentStorage = "storage"
	ComponentSheets  = "sheets"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentBackend = "backend"
	ComponentCache   = "cache"
)

// LogFields provides a builder for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds the component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds the error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds the operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithMonth adds the month field in display form
func (f LogFields) WithMonth(month string) LogFields {
	f[FieldMonth] = month
	return f
}

// WithEmployee adds the employee identity fields
func (f LogFields) WithEmployee(employeeID, collection string) LogFields {
	f[FieldEmployeeID] = employeeID
	if collection != "" {
		f[FieldCollection] = collection
	}
	return f
}

// WithTransaction adds the fields of one ledger entry
func (f LogFields) WithTransaction(token, direction, category, typ string, amountCents int64) LogFields {
	f[FieldToken] = token
	f[FieldDirection] = direction
	f[FieldCategory] = category
	f[FieldType] = typ
	f[FieldAmountCents] = amountCents
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
