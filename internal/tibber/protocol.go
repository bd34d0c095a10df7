package tibber

import "encoding/json"

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"

	// subprotocol is negotiated in Sec-WebSocket-Protocol.
	subprotocol = "graphql-transport-ws"
)

// wsMessage is one graphql-transport-ws frame.
type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// initPayload authenticates the websocket.
type initPayload struct {
	Token string `json:"token"`
}

// graphQLRequest is a query or subscription request body.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphQLError is one entry of a GraphQL errors array.
type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// nextPayload is the payload of a next frame.
type nextPayload struct {
	Data struct {
		LiveMeasurement json.RawMessage `json:"liveMeasurement"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// liveMeasurementQuery subscribes to every reading the feed offers.
const liveMeasurementQuery = `subscription($homeId: ID!) {
  liveMeasurement(homeId: $homeId) {
    timestamp
    power
    lastMeterConsumption
    accumulatedConsumption
    accumulatedProduction
    accumulatedConsumptionLastHour
    accumulatedProductionLastHour
    accumulatedCost
    accumulatedReward
    currency
    minPower
    averagePower
    maxPower
    powerProduction
    minPowerProduction
    maxPowerProduction
    lastMeterProduction
    powerFactor
    voltagePhase1
    voltagePhase2
    voltagePhase3
    currentL1
    currentL2
    currentL3
    signalStrength
  }
}`

// firstErrorMessage returns the first GraphQL error message, if any.
func firstErrorMessage(errs []graphQLError) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0].Message
}
