// Package docs holds the OpenAPI document served at /swagger and registers
// it with swag. It mirrors the godoc annotations on the hub handlers.
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
        "/messages/process": {
            "post": {
                "description": "Scores the message, upserts contact and thread, advances the thread status and stores a signal.\nA delivery already seen is answered from the stored signal with duplicate=true and the Idempotency-Replayed header.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Messages"],
                "summary": "Process an inbound message",
                "operationId": "processMessage",
                "parameters": [
                    {"type": "string", "example": "wxmsg-20260302-0001", "description": "Delivery key (used when message_id is empty)", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Inbound message", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ProcessMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.ProcessResult"}, "headers": {"Idempotency-Replayed": {"type": "string", "description": "true when answered from an earlier delivery"}}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Concurrent update or delivery in progress", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/unknown-pool": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Queues"],
                "summary": "Unknown contacts worth promoting",
                "operationId": "getUnknownPool",
                "parameters": [
                    {"type": "integer", "description": "Max items (default 50, max 200)", "name": "limit", "in": "query"},
                    {"type": "string", "description": "Weak ETag from a previous response", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.UnknownPoolResponse"}},
                    "304": {"description": "Not Modified"},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/today-todo": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Queues"],
                "summary": "Threads needing attention today",
                "operationId": "getTodayTodo",
                "parameters": [
                    {"type": "integer", "description": "Max items (default 50, max 200)", "name": "limit", "in": "query"},
                    {"type": "string", "description": "Weak ETag from a previous response", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.TodayTodoResponse"}},
                    "304": {"description": "Not Modified"},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/statistics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Statistics"],
                "summary": "Thread counts by status",
                "operationId": "getStatistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.ThreadStatistics"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/statistics/daily": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Statistics"],
                "summary": "Signal metrics for one calendar day",
                "operationId": "getDailyMetrics",
                "parameters": [
                    {"type": "string", "example": "2026-03-02", "description": "Day (YYYY-MM-DD), default today", "name": "date", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.DailyMetrics"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/contacts/promote": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Contacts"],
                "summary": "Promote an unknown contact to a customer",
                "operationId": "promoteContact",
                "parameters": [
                    {"description": "Promotion", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PromoteRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/services.PromoteResult"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Contact not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Already promoted", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/contacts/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Contacts"],
                "summary": "Get a contact",
                "operationId": "getContact",
                "parameters": [{"type": "string", "description": "Contact ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Contact"}},
                    "404": {"description": "Contact not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Contacts"],
                "summary": "Update remark or owner",
                "operationId": "updateContact",
                "parameters": [
                    {"type": "string", "description": "Contact ID", "name": "id", "in": "path", "required": true},
                    {"description": "Fields to change", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.UpdateContactRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Contact"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Contact not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/threads/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Threads"],
                "summary": "Get a thread",
                "operationId": "getThread",
                "parameters": [{"type": "string", "description": "Thread ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.ThreadView"}},
                    "404": {"description": "Thread not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/threads/{id}/snooze": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Threads"],
                "summary": "Snooze a thread",
                "operationId": "snoozeThread",
                "parameters": [
                    {"type": "string", "description": "Thread ID", "name": "id", "in": "path", "required": true},
                    {"description": "Snooze duration", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/handlers.SnoozeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.ThreadState"}},
                    "404": {"description": "Thread not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Concurrent update", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/threads/{id}/resolve": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Threads"],
                "summary": "Resolve a thread",
                "operationId": "resolveThread",
                "parameters": [{"type": "string", "description": "Thread ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.ThreadState"}},
                    "404": {"description": "Thread not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/threads/{id}/waiting": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Threads"],
                "summary": "Mark a thread as waiting on the customer",
                "operationId": "markWaiting",
                "parameters": [
                    {"type": "string", "description": "Thread ID", "name": "id", "in": "path", "required": true},
                    {"description": "Follow-up window", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/handlers.WaitingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.ThreadState"}},
                    "404": {"description": "Thread not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/threads/{id}/recalc": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Threads"],
                "summary": "Recalculate a thread's status",
                "operationId": "recalcThread",
                "parameters": [{"type": "string", "description": "Thread ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.RecalcResult"}},
                    "404": {"description": "Thread not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/threads/{id}/trigger": {
            "post": {
                "description": "Produces a structured form and a draft reply. Blacklisted threads are refused with 200 and refused=true.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Triggers"],
                "summary": "Run a reply workflow",
                "operationId": "triggerScenario",
                "parameters": [
                    {"type": "string", "description": "Thread ID", "name": "id", "in": "path", "required": true},
                    {"description": "Workflow input", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.TriggerRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RefusalResponse"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.TriggerOutput"}},
                    "400": {"description": "Bad request or unknown trigger type", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Thread not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Workflow engine failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/threads/{id}/trigger-output": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Triggers"],
                "summary": "Latest unused workflow output",
                "operationId": "getTriggerOutput",
                "parameters": [{"type": "string", "description": "Thread ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.TriggerOutput"}},
                    "404": {"description": "Thread or output not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/trigger-outputs/{id}/used": {
            "post": {
                "description": "Idempotent.",
                "tags": ["Triggers"],
                "summary": "Mark a workflow output as used",
                "operationId": "markTriggerUsed",
                "parameters": [{"type": "string", "description": "Trigger output ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Output not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/cron/recalc": {
            "post": {
                "description": "Recalculates every unresolved, non-snoozed thread. Also runs on the server's sweep interval.",
                "produces": ["application/json"],
                "tags": ["Cron"],
                "summary": "Sweep all open threads",
                "operationId": "recalcAll",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.RecalcSummary"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string", "example": "e1b9be03-4999-4289-9f03-999b042d65d6"},
                "code": {"type": "string", "example": "bad_request"},
                "message": {"type": "string", "example": "invalid JSON body"}
            }
        },
        "handlers.ProcessMessageRequest": {
            "type": "object",
            "required": ["last_speaker", "wx_id"],
            "properties": {
                "message_id": {"type": "string", "example": "wxmsg-20260302-0001"},
                "wx_id": {"type": "string", "example": "wxid_ab12cd34"},
                "remark": {"type": "string"},
                "text": {"type": "string"},
                "file_types": {"type": "array", "items": {"type": "string"}},
                "last_speaker": {"type": "string", "example": "them"},
                "timestamp": {"type": "string", "example": "2026-03-02T10:00:00+08:00"},
                "kb_matched": {"type": "boolean", "example": false}
            }
        },
        "handlers.PromoteRequest": {
            "type": "object",
            "required": ["contact_id", "name"],
            "properties": {
                "contact_id": {"type": "string"},
                "name": {"type": "string"},
                "region": {"type": "string"},
                "level": {"type": "string", "example": "A"},
                "owner": {"type": "string"}
            }
        },
        "handlers.UpdateContactRequest": {
            "type": "object",
            "properties": {
                "remark": {"type": "string"},
                "owner": {"type": "string"}
            }
        },
        "handlers.SnoozeRequest": {
            "type": "object",
            "properties": {"snooze_minutes": {"type": "integer", "example": 60}}
        },
        "handlers.WaitingRequest": {
            "type": "object",
            "properties": {"follow_up_hours": {"type": "integer", "example": 24}}
        },
        "handlers.TriggerRequest": {
            "type": "object",
            "required": ["text", "trigger_type"],
            "properties": {
                "text": {"type": "string"},
                "trigger_type": {"type": "string", "example": "AFTER_SALES"}
            }
        },
        "handlers.RefusalResponse": {
            "type": "object",
            "properties": {
                "refused": {"type": "boolean", "example": true},
                "reason": {"type": "string", "example": "blacklist_thread"},
                "message": {"type": "string"}
            }
        },
        "handlers.UnknownPoolResponse": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/domain.UnknownPoolItem"}},
                "count": {"type": "integer"}
            }
        },
        "handlers.TodayTodoResponse": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/domain.TodoItem"}},
                "count": {"type": "integer"}
            }
        },
        "domain.Contact": {"type": "object"},
        "domain.UnknownPoolItem": {"type": "object"},
        "domain.TodoItem": {"type": "object"},
        "domain.ThreadStatistics": {"type": "object"},
        "domain.DailyMetrics": {"type": "object"},
        "domain.TriggerOutput": {"type": "object"},
        "services.ProcessResult": {"type": "object"},
        "services.PromoteResult": {"type": "object"},
        "services.ThreadView": {"type": "object"},
        "services.ThreadState": {"type": "object"},
        "services.RecalcResult": {"type": "object"},
        "services.RecalcSummary": {"type": "object"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/hub",
	Schemes:          []string{},
	Title:            "Customer Hub API",
	Description:      "Scores inbound WeChat messages, tracks conversation threads and drafts replies.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
