package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"secret-santa/internal/wishlist"
)

func (s *Server) registerWishlistRoutes(g *gin.RouterGroup) {
	g.GET("/my-items", s.myItems())
	g.POST("/items", s.addItem())
	g.PUT("/items/:id", s.updateItem())
	g.DELETE("/items/:id", s.deleteItem())
	g.PATCH("/items/reorder", s.reorderItems())
	g.POST("/non-participants", s.addNonParticipant())
	g.GET("/recipient-items", s.recipientItems())
	g.PATCH("/mark-purchased/:id", s.markPurchased())
	g.GET("/all-wishlists", s.allWishlists())
}

func (s *Server) myItems() gin.HandlerFunc {
	return func(c *gin.Context) {
		lists, err := s.deps.Wishlist.MyItems(c.Request.Context(), caller(c).ID)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "items": lists.Items, "non_participants": lists.NonParticipants})
	}
}

func (s *Server) addItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in wishlist.ItemInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
		item, err := s.deps.Wishlist.AddItem(c.Request.Context(), caller(c).ID, in)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "item": item})
	}
}

func (s *Server) updateItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var in wishlist.ItemInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
		item, err := s.deps.Wishlist.UpdateItem(c.Request.Context(), caller(c).ID, id, in)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "item": item})
	}
}

func (s *Server) deleteItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		if err := s.deps.Wishlist.DeleteItem(c.Request.Context(), caller(c).ID, id); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

type reorderRequest struct {
	ItemIDs []int64 `json:"item_ids" binding:"required"`
}

func (s *Server) reorderItems() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reorderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if err := s.deps.Wishlist.Reorder(c.Request.Context(), caller(c).ID, req.ItemIDs); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

type nonParticipantRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) addNonParticipant() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req nonParticipantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		np, err := s.deps.Wishlist.AddNonParticipant(c.Request.Context(), caller(c).ID, req.Name)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "non_participant": np})
	}
}

func (s *Server) recipientItems() gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := s.deps.Wishlist.RecipientItems(c.Request.Context(), caller(c).ID)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "items": items})
	}
}

func (s *Server) markPurchased() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		purchased, err := s.deps.Wishlist.TogglePurchase(c.Request.Context(), caller(c).ID, id)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "is_purchased": purchased})
	}
}

func (s *Server) allWishlists() gin.HandlerFunc {
	return func(c *gin.Context) {
		lists, err := s.deps.Wishlist.All(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "wishlists": lists})
	}
}
