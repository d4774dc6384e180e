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
	"net/http"

	"github.com/gin-gonic/gin"
)

// EncryptionHealth round-trips a test payload through every KMS region and
// reports per-region status and latency. 503 only when no region at all can
// serve encryption.
func (a Api) EncryptionHealth(c *gin.Context) {
	regions := a.core.Encryption().HealthCheck(c.Request.Context())

	anyHealthy := false
	for _, r := range regions {
		if r.Healthy {
			anyHealthy = true
			break
		}
	}

	status := http.StatusOK
	if !anyHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"regions":  regions,
		"metadata": a.core.Encryption().Metadata(),
	})
}
