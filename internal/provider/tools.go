package provider

// UpdateItemsToolName is the only tool the assistant exposes to the model.
const UpdateItemsToolName = "update_checklist_items"

// UpdateItemsTool lets the model mark checklist items complete or incomplete
// by id, with a message for the crew.
func UpdateItemsTool() ToolSchema {
	return ToolSchema{
		Name:        UpdateItemsToolName,
		Description: "Update the completion status of checklist items by ID and reply to the user.",
		Parameters: map[string]any{
			"completed_items": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "integer"},
				"description": "IDs of items to mark as completed",
			},
			"uncompleted_items": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "integer"},
				"description": "IDs of items to mark as not completed",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Message to show to the user explaining the changes",
			},
		},
		Required: []string{"message"},
	}
}
