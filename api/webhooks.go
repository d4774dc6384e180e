/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parkerflight/bookingcore"
)

// Signature headers carried on every provider delivery.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// IngestWebhook receives one provider event. The raw body is handed to the
// processor untouched so signature verification sees exactly the bytes the
// provider signed. A duplicate delivery is a success: the provider must stop
// redelivering.
func (a Api) IngestWebhook(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := a.core.Processor().Ingest(
		c.Request.Context(),
		rawBody,
		c.GetHeader(HeaderSignature),
		c.GetHeader(HeaderTimestamp),
	)
	if err != nil {
		var sigErr *bookingcore.InvalidSignatureError
		if errors.As(err, &sigErr) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": sigErr.Error()})
			return
		}
		// A permanently unprocessable body must not be answered with a 5xx,
		// or the provider redelivers it forever.
		var badPayload *bookingcore.MalformedPayloadError
		if errors.As(err, &badPayload) {
			c.JSON(http.StatusBadRequest, gin.H{"error": badPayload.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}
