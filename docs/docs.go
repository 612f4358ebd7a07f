// Package docs registers the Swagger spec served at /swagger. Generated
// by swag init; edit the handler annotations, not this file.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/sessions/entry": {
            "post": {
                "summary": "Vehicle entry (idempotent)",
                "parameters": [
                    {
                        "description": "payload",
                        "name": "req",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/httpgin.EntryRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/httpgin.EntryResponse"
                        }
                    },
                    "409": {
                        "description": "already parked / lot full",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/sessions/exit": {
            "post": {
                "summary": "Vehicle exit",
                "parameters": [
                    {
                        "description": "payload",
                        "name": "req",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/httpgin.ExitRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ExitResponse"
                        }
                    },
                    "404": {
                        "description": "no open session",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/reservations": {
            "post": {
                "summary": "Create reservation",
                "parameters": [
                    {
                        "description": "payload",
                        "name": "req",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/httpgin.CreateReservationRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ReservationResponse"
                        }
                    },
                    "402": {
                        "description": "insufficient funds",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "class sold out",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/facilities/{id}/occupancy": {
            "get": {
                "summary": "Live occupancy counters",
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Facility ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/domain.Occupancy"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "domain.Occupancy": {
            "type": "object",
            "properties": {
                "available": {"type": "integer"},
                "occupied": {"type": "integer"},
                "reserved": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "httpgin.EntryRequest": {
            "type": "object",
            "required": ["facility_id", "plate"],
            "properties": {
                "facility_id": {"type": "integer"},
                "plate": {"type": "string"},
                "spot_class": {"type": "string"},
                "checkin_token": {"type": "string"},
                "method": {"type": "string"}
            }
        },
        "httpgin.EntryResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "integer"},
                "spot_id": {"type": "integer"},
                "spot_name": {"type": "string"},
                "session_type": {"type": "string"},
                "gate_action": {"type": "string"},
                "is_registered": {"type": "boolean"},
                "entry_time": {"type": "string"}
            }
        },
        "httpgin.ExitRequest": {
            "type": "object",
            "required": ["plate"],
            "properties": {
                "plate": {"type": "string"},
                "method": {"type": "string"}
            }
        },
        "httpgin.ExitResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "integer"},
                "spot_name": {"type": "string"},
                "duration_min": {"type": "integer"},
                "fee": {"type": "integer"},
                "payment_status": {"type": "string"},
                "gate_action": {"type": "string"},
                "new_balance": {"type": "integer"}
            }
        },
        "httpgin.CreateReservationRequest": {
            "type": "object",
            "required": ["vehicle_id", "facility_id", "start", "end"],
            "properties": {
                "vehicle_id": {"type": "integer"},
                "facility_id": {"type": "integer"},
                "spot_class": {"type": "string"},
                "start": {"type": "string"},
                "end": {"type": "string"}
            }
        },
        "httpgin.ReservationResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "spot_name": {"type": "string"},
                "spot_class": {"type": "string"},
                "start": {"type": "string"},
                "end": {"type": "string"},
                "status": {"type": "string"},
                "fee": {"type": "integer"},
                "payment_status": {"type": "string"},
                "checkin_token": {"type": "string"}
            }
        },
        "httpgin.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "gate_action": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "ParkGate API",
	Description:      "Parking session and spot allocation engine.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
