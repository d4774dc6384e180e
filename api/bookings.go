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

// CreateBooking runs the booking pipeline for one attempt. An unknown order
// outcome maps to 502 with the booking id and idempotency key so the caller
// can reconcile instead of blindly resubmitting.
func (a Api) CreateBooking(c *gin.Context) {
	var req bookingcore.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := a.core.Pipeline().Book(c.Request.Context(), req)
	if err != nil {
		var unknown *bookingcore.OrderStateUnknownError
		if errors.As(err, &unknown) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":           unknown.Error(),
				"booking_id":      unknown.BookingID,
				"idempotency_key": unknown.IdempotencyKey,
			})
			return
		}
		if errors.Is(err, bookingcore.ErrNoBookableOffers) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, booking)
}

func (a Api) GetBooking(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	booking, err := a.core.GetBooking(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if booking == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		return
	}

	c.JSON(http.StatusOK, booking)
}
