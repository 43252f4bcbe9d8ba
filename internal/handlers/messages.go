package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"queuemedix-server/internal/apperrors"
	"queuemedix-server/internal/middleware"
	"queuemedix-server/internal/models"
	"queuemedix-server/internal/notify"
	"queuemedix-server/internal/utils"
)

// MessageHandler handles messaging related requests.
type MessageHandler struct {
	DB   *gorm.DB
	Jobs notify.Enqueuer
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(db *gorm.DB, jobs notify.Enqueuer) *MessageHandler {
	return &MessageHandler{DB: db, Jobs: jobs}
}

// SendMessageRequest represents the request body for sending a message.
type SendMessageRequest struct {
	ReceiverID string `json:"receiverId" binding:"required"`
	Content    string `json:"content" binding:"required"`
}

// SendMessage stores a message and queues a notification for the receiver.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()

	senderID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "Sender ID not found in token")
		return
	}
	if senderID == req.ReceiverID {
		utils.BadRequest(c, "Cannot send a message to yourself.")
		return
	}

	var sender, receiver models.User
	if err := h.loadUser(c, senderID, &sender); err != nil {
		utils.RespondError(c, err)
		return
	}
	if err := h.loadUser(c, req.ReceiverID, &receiver); err != nil {
		utils.RespondError(c, err)
		return
	}

	message := models.Message{
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Content:    req.Content,
	}
	if err := h.DB.WithContext(ctx).Omit("Sender", "Receiver").Create(&message).Error; err != nil {
		utils.RespondError(c, apperrors.Internal("create message", err))
		return
	}

	notify.Send(context.WithoutCancel(ctx), h.Jobs, receiver.ID, fmt.Sprintf("New message from %s", sender.FullName()))
	utils.Created(c, "Message sent successfully", message)
}

// GetChatHistory returns the conversation between the caller and the user in the path,
// oldest first. Returned messages addressed to the caller are marked read.
func (h *MessageHandler) GetChatHistory(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	otherID := c.Param("userId")

	var other models.User
	if err := h.loadUser(c, otherID, &other); err != nil {
		utils.RespondError(c, err)
		return
	}

	var messages []models.Message
	q := h.DB.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, otherID, otherID, userID).
		Order("created_at asc")
	if err := utils.PageFromQuery(c).Apply(q).Find(&messages).Error; err != nil {
		utils.RespondError(c, apperrors.Internal("list messages", err))
		return
	}

	unread := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.ReceiverID == userID && m.ReadAt == nil {
			unread = append(unread, m.ID)
		}
	}
	if len(unread) > 0 {
		now := time.Now().UTC()
		err := h.DB.WithContext(ctx).Model(&models.Message{}).
			Where("id IN ? AND read_at IS NULL", unread).
			Update("read_at", now).Error
		if err != nil {
			utils.RespondError(c, apperrors.Internal("mark messages read", err))
			return
		}
		for i := range messages {
			if messages[i].ReceiverID == userID && messages[i].ReadAt == nil {
				messages[i].ReadAt = &now
			}
		}
	}

	utils.Success(c, "Messages fetched successfully", messages)
}

func (h *MessageHandler) loadUser(c *gin.Context, id string, dest *models.User) error {
	err := h.DB.WithContext(c.Request.Context()).First(dest, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound("user", id)
	}
	if err != nil {
		return apperrors.Internal("load user", err)
	}
	return nil
}
