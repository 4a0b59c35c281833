package validators

import "go.mongodb.org/mongo-driver/bson"

var NotificationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "user_id", "kind", "title", "read", "created_at"},
		"properties": bson.M{
			"_id":        bson.M{"bsonType": "string"},
			"user_id":    bson.M{"bsonType": "string", "minLength": 1},
			"kind":       bson.M{"bsonType": "string", "minLength": 1},
			"title":      bson.M{"bsonType": "string"},
			"message":    bson.M{"bsonType": "string"},
			"link_hint":  bson.M{"bsonType": "string"},
			"read":       bson.M{"bsonType": "bool"},
			"created_at": bson.M{"bsonType": "date"},
		},
	},
}

var AuditLogValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "actor", "action", "entity_ref", "at"},
		"properties": bson.M{
			"_id": bson.M{"bsonType": "string"},
			"actor": bson.M{
				"bsonType": "object",
				"required": []string{"kind"},
				"properties": bson.M{
					"kind": bson.M{"bsonType": "string", "enum": []string{"human", "system"}},
				},
			},
			"action":     bson.M{"bsonType": "string", "minLength": 1},
			"entity_ref": bson.M{"bsonType": "string", "minLength": 1},
			"details":    bson.M{"bsonType": "object"},
			"at":         bson.M{"bsonType": "date"},
		},
	},
}
