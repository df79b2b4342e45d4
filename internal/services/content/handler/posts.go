package handler

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"github.com/cminh91/dong-y-sub001/internal/services/shared"
	"github.com/cminh91/dong-y-sub001/internal/utils"
)

type PostFilter struct {
	Status        string
	Search        string
	PublishedOnly bool
	Page          shared.Page
}

func (s *ContentHandler) ListPosts(ctx context.Context, f PostFilter) ([]models.Post, shared.PageMeta, error) {
	page := f.Page.Normalize()
	query := s.db.WithContext(ctx).Model(&models.Post{})

	if f.PublishedOnly {
		query = query.Where("status = ?", models.PostPublished)
	} else if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(title) LIKE ? OR slug LIKE ?", like, "%"+utils.Slugify(term)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, shared.PageMeta{}, status.Errorf(codes.Internal, "Failed to count posts: %v", err)
	}

	var posts []models.Post
	q := query.Offset(page.Offset()).Limit(page.PageSize)
	if f.PublishedOnly {
		q = q.Order("published_at desc")
	}
	if err := q.Order("created_at desc").Order("id desc").Find(&posts).Error; err != nil {
		return nil, shared.PageMeta{}, status.Errorf(codes.Internal, "Failed to retrieve posts: %v", err)
	}
	return posts, page.Meta(total), nil
}

func (s *ContentHandler) GetPostBySlug(ctx context.Context, slug string, publishedOnly bool) (*models.Post, error) {
	query := s.db.WithContext(ctx).Where("slug = ?", slug)
	if publishedOnly {
		query = query.Where("status = ?", models.PostPublished)
	}
	var post models.Post
	if err := query.First(&post).Error; err != nil {
		return nil, shared.NotFoundOr(err, "bài viết")
	}
	return &post, nil
}

func (s *ContentHandler) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, shared.NotFoundOr(err, "bài viết")
	}
	return &post, nil
}

type PostInput struct {
	Title      *string
	Slug       *string
	Excerpt    *string
	Content    *string
	CoverImage *string
	Status     *string
}

func (s *ContentHandler) savePost(ctx context.Context, post *models.Post, in PostInput) error {
	if in.Title != nil {
		post.Title = strings.TrimSpace(*in.Title)
	}
	if in.Slug != nil {
		post.Slug = utils.Slugify(*in.Slug)
	}
	if post.Slug == "" {
		post.Slug = utils.Slugify(post.Title)
	}
	if in.Excerpt != nil {
		post.Excerpt = *in.Excerpt
	}
	if in.Content != nil {
		post.Content = *in.Content
	}
	if in.CoverImage != nil {
		post.CoverImage = *in.CoverImage
	}
	if in.Status != nil {
		post.Status = *in.Status
	}

	var v []shared.FieldViolation
	if post.Title == "" {
		v = append(v, shared.FieldViolation{Field: "title", Message: "Vui lòng nhập tiêu đề"})
	}
	if post.Slug == "" {
		v = append(v, shared.FieldViolation{Field: "slug", Message: "Slug không hợp lệ"})
	}
	if post.Status != models.PostDraft && post.Status != models.PostPublished {
		v = append(v, shared.FieldViolation{Field: "status", Message: "Trạng thái không hợp lệ"})
	}
	var dup int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("slug = ? AND id <> ?", post.Slug, post.ID).Count(&dup).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to check post slug: %v", err)
	}
	if dup > 0 {
		v = append(v, shared.FieldViolation{Field: "slug", Message: "Slug đã tồn tại"})
	}
	if len(v) > 0 {
		return shared.FieldError(codes.InvalidArgument, "Dữ liệu bài viết không hợp lệ", v...)
	}

	if post.Status == models.PostPublished && post.PublishedAt == nil {
		now := time.Now()
		post.PublishedAt = &now
	}

	if err := s.db.WithContext(ctx).Save(post).Error; err != nil {
		if shared.IsDuplicateKey(err) {
			return shared.FieldError(codes.AlreadyExists, "Slug đã tồn tại",
				shared.FieldViolation{Field: "slug", Message: "Slug đã tồn tại"})
		}
		return status.Errorf(codes.Internal, "Failed to save post: %v", err)
	}
	return nil
}

func (s *ContentHandler) CreatePost(ctx context.Context, authorID int64, in PostInput) (*models.Post, error) {
	post := models.Post{Status: models.PostDraft, AuthorID: &authorID}
	if err := s.savePost(ctx, &post, in); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *ContentHandler) UpdatePost(ctx context.Context, id int64, in PostInput) (*models.Post, error) {
	post, err := s.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.savePost(ctx, post, in); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *ContentHandler) DeletePost(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&models.Post{}, id)
	if res.Error != nil {
		return status.Errorf(codes.Internal, "Failed to delete post: %v", res.Error)
	}
	if res.RowsAffected == 0 {
		return status.Errorf(codes.NotFound, "Không tìm thấy bài viết")
	}
	return nil
}
