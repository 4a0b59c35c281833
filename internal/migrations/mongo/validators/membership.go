package validators

import "go.mongodb.org/mongo-driver/bson"

var UserValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "role"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},
			"name": bson.M{
				"bsonType":  "string",
				"maxLength": 200,
			},
			"role": bson.M{
				"bsonType": "string",
				"enum":     []string{"admin", "technician", "member"},
			},
		},
	},
}

var LabMembershipValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"user_id", "lab_id", "status"},
		"properties": bson.M{
			"user_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"lab_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"active",
					"pending_approval",
					"rejected",
					"revoked",
				},
			},
		},
	},
}
