package vcom

// SystemSummary is one row of the /systems listing.
type SystemSummary struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Coordinates is a geolocation pair.
type Coordinates struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Address is the structured postal address of a system.
type Address struct {
	Street     string `json:"street"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
}

// SystemDetails is the /systems/{key} detail record.
type SystemDetails struct {
	Key            string      `json:"key"`
	Name           string      `json:"name"`
	Coordinates    Coordinates `json:"coordinates"`
	Address        Address     `json:"address"`
	CommissionDate string      `json:"commissionDate"`
}

// Panel is one module reference installed at a system.
type Panel struct {
	Vendor string `json:"vendor"`
	Model  string `json:"model"`
	Count  *int   `json:"count"`
}

// ModuleRef identifies the module type wired into an MPPT input.
type ModuleRef struct {
	Vendor string `json:"vendor"`
	Model  string `json:"model"`
}

// MPPTInput describes the strings connected to one MPPT tracker.
type MPPTInput struct {
	StringCount      int       `json:"stringCount"`
	ModulesPerString *int      `json:"modulesPerString"`
	Module           ModuleRef `json:"module"`
}

// SystemConfiguration is one inverter's string wiring, in inverter order.
type SystemConfiguration struct {
	MPPTInputs map[string]MPPTInput `json:"mpptInputs"`
}

// TechnicalData is the /systems/{key}/technical-data record.
type TechnicalData struct {
	NominalPower         *float64              `json:"nominalPower"`
	Panels               []Panel               `json:"panels"`
	SystemConfigurations []SystemConfiguration `json:"systemConfigurations"`
}

// Inverter is one row of the inverter listing.
type Inverter struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Serial string `json:"serial"`
}

// InverterDetails is the inverter detail record.
type InverterDetails struct {
	ID     string `json:"id"`
	Vendor string `json:"vendor"`
	Model  string `json:"model"`
}

// Ticket is a VCOM monitoring ticket.
type Ticket struct {
	ID        string `json:"id"`
	Title     string `json:"designation"`
	Status    string `json:"status"`
	Priority  string `json:"priority"`
	SystemKey string `json:"systemKey"`
	CreatedAt string `json:"createdAt"`
}
