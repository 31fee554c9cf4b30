// Package docs holds the OpenAPI description served at /api/v1/swagger.
//
// It mirrors the swag annotations on the api handlers; regenerate with
// `go generate ./cmd/pubsub-server` after changing them.
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
        "/health": {
            "get": {
                "description": "Pings the store.",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "Healthy", "schema": {"$ref": "#/definitions/api.SuccessResponse"}},
                    "503": {"description": "Store unavailable", "schema": {"$ref": "#/definitions/api.SuccessResponse"}}
                }
            }
        },
        "/topics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Topics"],
                "summary": "List topics",
                "responses": {
                    "200": {"description": "Topics", "schema": {"$ref": "#/definitions/api.SuccessResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Topics"],
                "summary": "Create a topic",
                "parameters": [
                    {"description": "Topic", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.CreateTopicRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/api.SuccessResponse"}},
                    "400": {"description": "Invalid name", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/topics/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Topics"],
                "summary": "Get a topic",
                "parameters": [
                    {"type": "integer", "description": "Topic ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Topic", "schema": {"$ref": "#/definitions/api.SuccessResponse"}},
                    "404": {"description": "Unknown topic", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/topics/{id}/subscriptions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Subscriptions"],
                "summary": "List subscriptions of a topic",
                "parameters": [
                    {"type": "integer", "description": "Topic ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Subscriptions", "schema": {"$ref": "#/definitions/api.SuccessResponse"}},
                    "404": {"description": "Unknown topic", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Subscriptions"],
                "summary": "Subscribe to a topic",
                "parameters": [
                    {"type": "integer", "description": "Topic ID", "name": "id", "in": "path", "required": true},
                    {"description": "Subscription", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/api.CreateSubscriptionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/api.SuccessResponse"}},
                    "404": {"description": "Unknown topic", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/topics/{id}/messages": {
            "post": {
                "description": "Creates one NEW copy per subscription the topic has now.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Messages"],
                "summary": "Publish a message",
                "parameters": [
                    {"type": "integer", "description": "Topic ID", "name": "id", "in": "path", "required": true},
                    {"description": "Message", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.PublishRequest"}}
                ],
                "responses": {
                    "200": {"description": "Published", "schema": {"allOf": [{"$ref": "#/definitions/api.SuccessResponse"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/api.PublishResponse"}}}]}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "404": {"description": "Unknown topic", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "409": {"description": "No subscriptions", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/subscriptions/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Subscriptions"],
                "summary": "Get a subscription",
                "parameters": [
                    {"type": "integer", "description": "Subscription ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Subscription", "schema": {"$ref": "#/definitions/api.SuccessResponse"}},
                    "404": {"description": "Unknown subscription", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/subscriptions/{id}/messages": {
            "get": {
                "description": "Leases up to maxBatch NEW messages, oldest first. An empty list is a normal answer.",
                "produces": ["application/json"],
                "tags": ["Messages"],
                "summary": "Pull messages",
                "parameters": [
                    {"type": "integer", "description": "Subscription ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Batch size", "name": "maxBatch", "in": "query"},
                    {"type": "integer", "description": "Lease in seconds", "name": "leaseSeconds", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Leased messages", "schema": {"allOf": [{"$ref": "#/definitions/api.SuccessResponse"}, {"type": "object", "properties": {"data": {"type": "array", "items": {"$ref": "#/definitions/api.MessageResponse"}}}}]}},
                    "400": {"description": "Invalid query", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "404": {"description": "Unknown subscription", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Same as /subscriptions/{id}/ack; the body may be a bare array of IDs.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Messages"],
                "summary": "Acknowledge messages",
                "parameters": [
                    {"type": "integer", "description": "Subscription ID", "name": "id", "in": "path", "required": true},
                    {"description": "Message IDs", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.AckRequest"}}
                ],
                "responses": {
                    "200": {"description": "Acknowledged", "schema": {"allOf": [{"$ref": "#/definitions/api.SuccessResponse"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/api.AckResponse"}}}]}},
                    "400": {"description": "No IDs", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "404": {"description": "Unknown subscription", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/subscriptions/{id}/ack": {
            "post": {
                "description": "Moves each leased message to ACKED. Unknown, foreign and repeated IDs are skipped.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Messages"],
                "summary": "Acknowledge messages",
                "parameters": [
                    {"type": "integer", "description": "Subscription ID", "name": "id", "in": "path", "required": true},
                    {"description": "Message IDs", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.AckRequest"}}
                ],
                "responses": {
                    "200": {"description": "Acknowledged", "schema": {"allOf": [{"$ref": "#/definitions/api.SuccessResponse"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/api.AckResponse"}}}]}},
                    "400": {"description": "No IDs", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "404": {"description": "Unknown subscription", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "api.AckRequest": {
            "type": "object",
            "properties": {
                "messageIds": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "api.AckResponse": {
            "type": "object",
            "properties": {
                "ackedCount": {"type": "integer"},
                "requested": {"type": "integer"}
            }
        },
        "api.CreateSubscriptionRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"}
            }
        },
        "api.CreateTopicRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"}
            }
        },
        "api.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "error": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "api.MessageResponse": {
            "type": "object",
            "properties": {
                "deliveryCount": {"type": "integer"},
                "expiresAt": {"type": "string"},
                "id": {"type": "integer"},
                "leaseExpiresAt": {"type": "string"},
                "payload": {"type": "string"},
                "status": {"type": "string"},
                "subscriptionID": {"type": "integer"}
            }
        },
        "api.PublishRequest": {
            "type": "object",
            "properties": {
                "payload": {"type": "string"},
                "ttlSeconds": {"type": "integer"}
            }
        },
        "api.PublishResponse": {
            "type": "object",
            "properties": {
                "publishedCount": {"type": "integer"},
                "subscriptionIDs": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "api.SuccessResponse": {
            "type": "object",
            "properties": {
                "data": {},
                "message": {"type": "string"},
                "success": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.2.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Broker API",
	Description:      "Pull-based publish/subscribe: publish fans out one copy per subscription, pull leases messages, acknowledge finalizes them.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
