package event

const BatchRequestedDestination string = "mailmerge.batch.requested"
const BatchRequestedConsumerMailmerge string = "mailmerge_batch_requested"

type AssetMessage struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	// Content is base64 for attachments and a data URI for banners.
	Content   string `json:"content,omitempty"`
	ObjectKey string `json:"object_key,omitempty"`
}

type BatchRequestedMessage struct {
	BatchID               string        `json:"batch_id"`
	Subject               string        `json:"subject"`
	Message               string        `json:"message"`
	RecipientsFileContent string        `json:"recipients_file_content"`
	Attachment            *AssetMessage `json:"attachment,omitempty"`
	Banner                *AssetMessage `json:"banner,omitempty"`
}
