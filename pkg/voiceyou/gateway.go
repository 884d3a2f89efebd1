package voiceyou

import "context"

// UploadGateway transfers finished recordings to the backend, one multipart
// request per call.
type UploadGateway struct {
	api    *APIClient
	logger *Logger
}

func NewUploadGateway(api *APIClient) *UploadGateway {
	return &UploadGateway{
		api:    api,
		logger: GetGlobalLogger().WithComponent("UploadGateway"),
	}
}

// Upload sends blob under fileName. A failed upload leaves nothing to clean
// up locally; the caller keeps its blob.
func (g *UploadGateway) Upload(ctx context.Context, blob *Blob, fileName string) (*UploadResult, error) {
	if blob == nil || blob.Size() == 0 {
		return nil, NewClientError("no recording to upload")
	}

	g.logger.WithFields(map[string]interface{}{
		"file_name": fileName,
		"bytes":     blob.Size(),
	}).Info("Uploading recording")

	result, err := g.api.UploadAudio(ctx, blob.data, fileName, blob.MIMEType()).Unwrap()
	if err != nil {
		g.logger.WithError(err).Warn("Upload failed")
		return nil, err
	}

	g.logger.WithField("url", result.RemoteURL).Info("Upload complete")
	return result, nil
}
