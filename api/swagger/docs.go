// Package swagger holds the OpenAPI document served at /swagger. Regenerate
// it with swag init after changing handler annotations.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
	"schemes": {{ marshal .Schemes }},
	"swagger": "2.0",
	"info": {
		"description": "{{escape .Description}}",
		"title": "{{.Title}}",
		"contact": {},
		"license": {
			"name": "MIT",
			"url": "https://opensource.org/licenses/MIT"
		},
		"version": "{{.Version}}"
	},
	"host": "{{.Host}}",
	"basePath": "{{.BasePath}}",
	"paths": {
		"/auth/register": {
			"post": {
				"tags": [
					"auth"
				],
				"summary": "Register a new user",
				"produces": [
					"application/json"
				],
				"responses": {
					"201": {
						"description": "OK"
					},
					"409": {
						"description": "Email or username taken"
					},
					"422": {
						"description": "Validation error"
					}
				},
				"parameters": [
					{
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"type": "object"
						}
					}
				]
			}
		},
		"/auth/login": {
			"post": {
				"tags": [
					"auth"
				],
				"summary": "Login",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"401": {
						"description": "Invalid credentials"
					}
				},
				"parameters": [
					{
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"type": "object"
						}
					}
				]
			}
		},
		"/auth/logout": {
			"post": {
				"tags": [
					"auth"
				],
				"summary": "Logout",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				}
			}
		},
		"/auth/me": {
			"get": {
				"tags": [
					"auth"
				],
				"summary": "Current user",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"401": {
						"description": "Unauthorized"
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/universities/public": {
			"get": {
				"tags": [
					"universities"
				],
				"summary": "List universities open for registration",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				}
			}
		},
		"/universities": {
			"get": {
				"tags": [
					"universities"
				],
				"summary": "List universities",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "page",
						"in": "query",
						"required": false,
						"type": "integer"
					},
					{
						"name": "size",
						"in": "query",
						"required": false,
						"type": "integer"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"post": {
				"tags": [
					"universities"
				],
				"summary": "Create a university",
				"produces": [
					"application/json"
				],
				"responses": {
					"201": {
						"description": "OK"
					},
					"409": {
						"description": "Code already taken"
					}
				},
				"parameters": [
					{
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"type": "object"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/universities/{id}": {
			"get": {
				"tags": [
					"universities"
				],
				"summary": "Get a university",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"404": {
						"description": "University not found"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"put": {
				"tags": [
					"universities"
				],
				"summary": "Update a university",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"403": {
						"description": "Admin access required"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					},
					{
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"type": "object"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/universities/{id}/departments": {
			"get": {
				"tags": [
					"universities"
				],
				"summary": "List departments",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					},
					{
						"name": "active_only",
						"in": "query",
						"required": false,
						"type": "boolean"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"post": {
				"tags": [
					"universities"
				],
				"summary": "Create a department",
				"produces": [
					"application/json"
				],
				"responses": {
					"201": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					},
					{
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"type": "object"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/universities/{id}/departments/{deptId}": {
			"put": {
				"tags": [
					"universities"
				],
				"summary": "Update a department",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					},
					{
						"name": "deptId",
						"in": "path",
						"required": true,
						"type": "integer"
					},
					{
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"type": "object"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/admin/stats": {
			"get": {
				"tags": [
					"admin"
				],
				"summary": "Platform statistics",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/admin/users": {
			"get": {
				"tags": [
					"admin"
				],
				"summary": "List users",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "role",
						"in": "query",
						"required": false,
						"type": "string"
					},
					{
						"name": "active",
						"in": "query",
						"required": false,
						"type": "boolean"
					},
					{
						"name": "q",
						"in": "query",
						"required": false,
						"type": "string"
					},
					{
						"name": "university_id",
						"in": "query",
						"required": false,
						"type": "integer"
					},
					{
						"name": "page",
						"in": "query",
						"required": false,
						"type": "integer"
					},
					{
						"name": "size",
						"in": "query",
						"required": false,
						"type": "integer"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"post": {
				"tags": [
					"admin"
				],
				"summary": "Create a user",
				"produces": [
					"application/json"
				],
				"responses": {
					"201": {
						"description": "OK"
					},
					"409": {
						"description": "Email or username taken"
					}
				},
				"parameters": [
					{
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"type": "object"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/admin/users/{id}": {
			"get": {
				"tags": [
					"admin"
				],
				"summary": "Get a user",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"404": {
						"description": "User not found"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"put": {
				"tags": [
					"admin"
				],
				"summary": "Update a user",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"403": {
						"description": "Role change not allowed"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					},
					{
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"type": "object"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/complaints": {
			"get": {
				"tags": [
					"complaints"
				],
				"summary": "List complaints",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "status",
						"in": "query",
						"required": false,
						"type": "string"
					},
					{
						"name": "category",
						"in": "query",
						"required": false,
						"type": "string"
					},
					{
						"name": "priority",
						"in": "query",
						"required": false,
						"type": "string"
					},
					{
						"name": "department_id",
						"in": "query",
						"required": false,
						"type": "integer"
					},
					{
						"name": "university_id",
						"in": "query",
						"required": false,
						"type": "integer"
					},
					{
						"name": "assignee_id",
						"in": "query",
						"required": false,
						"type": "integer"
					},
					{
						"name": "from",
						"in": "query",
						"required": false,
						"type": "string"
					},
					{
						"name": "to",
						"in": "query",
						"required": false,
						"type": "string"
					},
					{
						"name": "q",
						"in": "query",
						"required": false,
						"type": "string"
					},
					{
						"name": "page",
						"in": "query",
						"required": false,
						"type": "integer"
					},
					{
						"name": "size",
						"in": "query",
						"required": false,
						"type": "integer"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"post": {
				"tags": [
					"complaints"
				],
				"summary": "File a complaint",
				"produces": [
					"application/json"
				],
				"responses": {
					"201": {
						"description": "OK"
					},
					"422": {
						"description": "Validation error"
					}
				},
				"parameters": [
					{
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"type": "object"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/complaints/{id}": {
			"get": {
				"tags": [
					"complaints"
				],
				"summary": "Get a complaint",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"404": {
						"description": "Complaint not found"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"put": {
				"tags": [
					"complaints"
				],
				"summary": "Update a complaint",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					},
					"409": {
						"description": "Version conflict"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					},
					{
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"type": "object"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/complaints/{id}/status": {
			"post": {
				"tags": [
					"complaints"
				],
				"summary": "Change complaint status",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					},
					{
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"type": "object"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/complaints/{id}/assign": {
			"post": {
				"tags": [
					"complaints"
				],
				"summary": "Replace the assignee set",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					},
					{
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"type": "object"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/complaints/{id}/rating": {
			"post": {
				"tags": [
					"complaints"
				],
				"summary": "Rate a resolution",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					},
					{
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"type": "object"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/complaints/{id}/messages": {
			"get": {
				"tags": [
					"complaints"
				],
				"summary": "List messages",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"post": {
				"tags": [
					"complaints"
				],
				"summary": "Post a message",
				"produces": [
					"application/json"
				],
				"responses": {
					"201": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					},
					{
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"type": "object"
						}
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/complaints/{id}/attachments": {
			"get": {
				"tags": [
					"complaints"
				],
				"summary": "List attachments",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			},
			"post": {
				"tags": [
					"complaints"
				],
				"summary": "Upload an attachment",
				"produces": [
					"application/json"
				],
				"responses": {
					"201": {
						"description": "OK"
					},
					"502": {
						"description": "File storage unavailable"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					},
					{
						"name": "file",
						"in": "formData",
						"required": true,
						"type": "file"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				],
				"consumes": [
					"multipart/form-data"
				]
			}
		},
		"/complaints/{id}/attachments/{attId}/download": {
			"get": {
				"tags": [
					"complaints"
				],
				"summary": "Download an attachment",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					},
					{
						"name": "attId",
						"in": "path",
						"required": true,
						"type": "integer"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/complaints/{id}/activities": {
			"get": {
				"tags": [
					"complaints"
				],
				"summary": "Complaint history",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/analytics/dashboard": {
			"get": {
				"tags": [
					"analytics"
				],
				"summary": "Dashboard statistics",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "university_id",
						"in": "query",
						"required": false,
						"type": "integer"
					},
					{
						"name": "department_id",
						"in": "query",
						"required": false,
						"type": "integer"
					},
					{
						"name": "from",
						"in": "query",
						"required": false,
						"type": "string"
					},
					{
						"name": "to",
						"in": "query",
						"required": false,
						"type": "string"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/analytics/trends": {
			"get": {
				"tags": [
					"analytics"
				],
				"summary": "Monthly trends",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "university_id",
						"in": "query",
						"required": false,
						"type": "integer"
					},
					{
						"name": "months",
						"in": "query",
						"required": false,
						"type": "integer"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/analytics/departments": {
			"get": {
				"tags": [
					"analytics"
				],
				"summary": "Department performance",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "university_id",
						"in": "query",
						"required": false,
						"type": "integer"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/notifications": {
			"get": {
				"tags": [
					"notifications"
				],
				"summary": "List notifications",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "unread_only",
						"in": "query",
						"required": false,
						"type": "boolean"
					},
					{
						"name": "page",
						"in": "query",
						"required": false,
						"type": "integer"
					},
					{
						"name": "size",
						"in": "query",
						"required": false,
						"type": "integer"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/notifications/unread-count": {
			"get": {
				"tags": [
					"notifications"
				],
				"summary": "Unread notification count",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/notifications/{id}/read": {
			"post": {
				"tags": [
					"notifications"
				],
				"summary": "Mark a notification read",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "id",
						"in": "path",
						"required": true,
						"type": "integer"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/notifications/read-all": {
			"post": {
				"tags": [
					"notifications"
				],
				"summary": "Mark all notifications read",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		},
		"/export/complaints": {
			"get": {
				"tags": [
					"export"
				],
				"summary": "Export complaints",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK"
					}
				},
				"parameters": [
					{
						"name": "format",
						"in": "query",
						"required": false,
						"type": "string"
					},
					{
						"name": "download",
						"in": "query",
						"required": false,
						"type": "boolean"
					},
					{
						"name": "status",
						"in": "query",
						"required": false,
						"type": "string"
					},
					{
						"name": "category",
						"in": "query",
						"required": false,
						"type": "string"
					},
					{
						"name": "priority",
						"in": "query",
						"required": false,
						"type": "string"
					},
					{
						"name": "department_id",
						"in": "query",
						"required": false,
						"type": "integer"
					},
					{
						"name": "university_id",
						"in": "query",
						"required": false,
						"type": "integer"
					},
					{
						"name": "assignee_id",
						"in": "query",
						"required": false,
						"type": "integer"
					},
					{
						"name": "from",
						"in": "query",
						"required": false,
						"type": "string"
					},
					{
						"name": "to",
						"in": "query",
						"required": false,
						"type": "string"
					},
					{
						"name": "q",
						"in": "query",
						"required": false,
						"type": "string"
					}
				],
				"security": [
					{
						"BearerAuth": []
					}
				]
			}
		}
	},
	"securityDefinitions": {
		"BearerAuth": {
			"description": "JWT access token. Format: \"Bearer {token}\"",
			"type": "apiKey",
			"name": "Authorization",
			"in": "header"
		}
	}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:		  "1.0",
	Host:			 "localhost:8080",
	BasePath:		 "/api/v1",
	Schemes:		  []string{},
	Title:			"UniResolve API",
	Description:	  "Multi-tenant university complaint management.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:		"{{",
	RightDelim:	   "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
