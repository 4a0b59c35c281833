package validators

import "go.mongodb.org/mongo-driver/bson"

var resolutionSchema = bson.M{
	"bsonType": "object",
	"required": []string{"action", "actor_kind", "at"},
	"properties": bson.M{
		"action": bson.M{
			"bsonType":  "string",
			"minLength": 1,
		},
		"actor_kind": bson.M{
			"bsonType": "string",
			"enum":     []string{"human", "system"},
		},
		"actor_id": bson.M{
			"bsonType": "string",
		},
		"actor_name": bson.M{
			"bsonType": "string",
		},
		"reason": bson.M{
			"bsonType":  "string",
			"maxLength": 500,
		},
		"at": bson.M{
			"bsonType": "date",
		},
	},
}

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"resource_id",
			"user_id",
			"start_time",
			"end_time",
			"status",
			"created_at",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"resource_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"user_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"start_time": bson.M{
				"bsonType": "date",
			},

			"end_time": bson.M{
				"bsonType": "date",
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"pending",
					"confirmed",
					"waitlisted",
					"cancelled",
				},
			},

			"notes": bson.M{
				"bsonType":  "string",
				"maxLength": 2000,
			},

			"resolution": resolutionSchema,

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var ResourceLockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "version"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"version": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
