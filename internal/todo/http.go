package todo

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Lister は Todo 一覧の取得を提供します。
type Lister interface {
	List() []Todo
}

// Getter は ID による Todo の取得を提供します。
type Getter interface {
	Get(id int) (Todo, bool)
}

// ListHandler は GET /todos/ のハンドラーを返します。
func ListHandler(repo Lister) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, repo.List())
	}
}

// GetHandler は GET /todos/:id のハンドラーを返します。
func GetHandler(repo Getter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			// 整数でない ID はルートに一致しないものとして扱う
			respondNotFound(c)
			return
		}

		todo, ok := repo.Get(id)
		if !ok {
			respondNotFound(c)
			return
		}
		c.JSON(http.StatusOK, todo)
	}
}

func respondNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"code":    "TODO_NOT_FOUND",
		"message": "指定された Todo は存在しません。",
	})
}
